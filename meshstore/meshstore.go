// Package meshstore persists extracted meshes in a SQLite database so that
// meshes of a shape are extracted once across program runs.
package meshstore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/soypat/cantucci"
	"github.com/soypat/cantucci/glrender"
	"github.com/soypat/cantucci/shapemesh"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when no mesh is stored under a key.
var ErrNotFound = errors.New("mesh not found")

var _ shapemesh.MeshCache = (*Store)(nil)

// meshModel is the database schema of a stored mesh.
type meshModel struct {
	ID          string `gorm:"primaryKey"`
	NumVertices int
	NumFaces    int
	// Data is the protobuf wire encoded mesh.
	Data      []byte
	CreatedAt time.Time
}

func (meshModel) TableName() string { return "meshes" }

// Store is a mesh database. It is safe for concurrent use.
type Store struct {
	mu sync.Mutex
	db *gorm.DB
}

// Open opens or creates the mesh database at path and migrates its schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening mesh store: %w", err)
	}
	if err := db.AutoMigrate(&meshModel{}); err != nil {
		return nil, fmt.Errorf("migrating mesh store: %w", err)
	}
	cantucci.Logger().Info("mesh store opened", "path", path)
	return &Store{db: db}, nil
}

// Put stores buf under key, replacing any mesh stored before. Timings are not stored.
func (s *Store) Put(key string, buf glrender.Buffer) error {
	data, err := appendMesh(nil, buf)
	if err != nil {
		return err
	}
	model := meshModel{
		ID:          key,
		NumVertices: len(buf.Vertices),
		NumFaces:    len(buf.Indices) / 3,
		Data:        data,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Save(&model).Error; err != nil {
		return fmt.Errorf("saving mesh %s: %w", key, err)
	}
	return nil
}

// Get returns the mesh stored under key or [ErrNotFound].
func (s *Store) Get(key string) (glrender.Buffer, error) {
	var model meshModel
	s.mu.Lock()
	err := s.db.First(&model, "id = ?", key).Error
	s.mu.Unlock()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return glrender.Buffer{}, ErrNotFound
	} else if err != nil {
		return glrender.Buffer{}, fmt.Errorf("loading mesh %s: %w", key, err)
	}
	buf, err := consumeMesh(model.Data)
	if err != nil {
		return glrender.Buffer{}, fmt.Errorf("decoding mesh %s: %w", key, err)
	}
	if len(buf.Vertices) != model.NumVertices || len(buf.Indices) != 3*model.NumFaces {
		return glrender.Buffer{}, fmt.Errorf("mesh %s: stored counts do not match data", key)
	}
	buf.Timings.NumVertices = model.NumVertices
	buf.Timings.NumFaces = model.NumFaces
	return buf, nil
}

// LoadMesh implements [shapemesh.MeshCache].
func (s *Store) LoadMesh(key string) (glrender.Buffer, bool, error) {
	buf, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return glrender.Buffer{}, false, nil
	} else if err != nil {
		return glrender.Buffer{}, false, err
	}
	return buf, true, nil
}

// StoreMesh implements [shapemesh.MeshCache].
func (s *Store) StoreMesh(key string, buf glrender.Buffer) error {
	return s.Put(key, buf)
}

// Delete removes the mesh stored under key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete(&meshModel{}, "id = ?", key).Error
}

// Len returns the amount of meshes stored.
func (s *Store) Len() (int, error) {
	var n int64
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Model(&meshModel{}).Count(&n).Error
	return int(n), err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
