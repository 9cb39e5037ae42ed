package shapemesh

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/chewxy/math32"
	"github.com/soypat/cantucci"
	"github.com/soypat/cantucci/glrender"
	"github.com/soypat/cantucci/internal/parallel"
	"github.com/soypat/geometry/ms3"
)

// ErrClosed is returned by Coordinator methods called after Close.
var ErrClosed = errors.New("coordinator closed")

// ViewBuilder turns extracted meshes into views. It is called from the
// goroutine calling [Coordinator.Update], which may be bound to a GPU context.
type ViewBuilder interface {
	BuildView(vertices []glrender.Vertex, indices []uint32) (View, error)
}

// MeshCache stores extracted meshes across runs.
type MeshCache interface {
	// LoadMesh returns the mesh stored under key. found is false on a cache miss.
	LoadMesh(key string) (buf glrender.Buffer, found bool, err error)
	StoreMesh(key string, buf glrender.Buffer) error
}

// Executor runs extraction jobs. Submit must not block on job completion.
// Close waits for submitted jobs to finish.
type Executor interface {
	Submit(job func()) error
	Close()
}

// Config configures a [Coordinator]. The zero value is usable.
type Config struct {
	// Resolution is the amount of cells per axis of each leaf mesh.
	// Must be a power of two. Defaults to 32.
	Resolution int
	// Workers is the amount of goroutines extracting meshes. Defaults to GOMAXPROCS.
	// Ignored if Executor is set.
	Workers int
	// MaxDepth is the deepest level leaves are split to. 0 disables refinement.
	MaxDepth int
	// SplitFactor scales the distance below which a leaf is split:
	// a Ready leaf is split when the focus is closer to its center than
	// SplitFactor times its diagonal. Defaults to 1.
	SplitFactor float32
	// Cache is consulted before extracting a mesh and filled afterwards. Optional.
	Cache MeshCache
	// Executor runs extraction jobs. Defaults to a worker pool of Workers goroutines.
	// The Coordinator closes it on Close.
	Executor Executor
}

// Stats holds job counters of a [Coordinator].
type Stats struct {
	Submitted int
	// Completed is the amount of results received by Update.
	Completed int
	// Pending is the amount of jobs submitted whose results were not yet received.
	Pending int
	// Discarded is the amount of results dropped due to Close.
	Discarded int
}

type result struct {
	center ms3.Vec
	buf    glrender.Buffer
	err    error
}

// Coordinator keeps the meshes of a shape in an [Index] up to date. Each call to
// Update installs finished meshes, refines the index around a point of interest
// and dispatches extraction of the leaves that have no mesh.
//
// Update and Close must be called from a single goroutine.
type Coordinator struct {
	shape   cantucci.Shape
	vb      ViewBuilder
	cfg     Config
	index   *Index
	exec    Executor
	results chan result
	// done is closed by Close. Jobs finishing afterwards discard their result.
	done      chan struct{}
	closeOnce sync.Once
	closed    bool
	// shapeID identifies the shape in mesh cache keys.
	shapeID []byte

	submitted atomic.Int64
	completed atomic.Int64
	discarded atomic.Int64
}

// NewCoordinator returns a Coordinator meshing s over span. The index starts as a single
// Empty leaf, extraction of which is dispatched by the first call to Update.
func NewCoordinator(s cantucci.Shape, span ms3.Box, vb ViewBuilder, cfg Config) (*Coordinator, error) {
	switch {
	case s == nil:
		return nil, errors.New("nil shape")
	case vb == nil:
		return nil, errors.New("nil view builder")
	case cfg.Resolution < 0 || (cfg.Resolution != 0 && bits.OnesCount(uint(cfg.Resolution)) != 1):
		return nil, fmt.Errorf("resolution %d not a power of two", cfg.Resolution)
	case cfg.MaxDepth < 0:
		return nil, errors.New("negative max depth")
	case cfg.SplitFactor < 0 || math32.IsNaN(cfg.SplitFactor) || math32.IsInf(cfg.SplitFactor, 0):
		return nil, fmt.Errorf("invalid split factor %v", cfg.SplitFactor)
	}
	sz := span.Size()
	if !(sz.X > 0 && sz.Y > 0 && sz.Z > 0) {
		return nil, fmt.Errorf("degenerate span %v", span)
	}
	if cfg.Resolution == 0 {
		cfg.Resolution = 32
	}
	if cfg.SplitFactor == 0 {
		cfg.SplitFactor = 1
	}
	exec := cfg.Executor
	if exec == nil {
		pool := parallel.NewWorkerPool(cfg.Workers)
		cfg.Workers = pool.Workers()
		exec = pool
	}
	c := &Coordinator{
		shape:   s,
		vb:      vb,
		cfg:     cfg,
		index:   NewIndex(span),
		exec:    exec,
		results: make(chan result, 64),
		done:    make(chan struct{}),
	}
	if cfg.Cache != nil {
		c.shapeID = []byte(cantucci.DEShader(s))
	}
	cantucci.Logger().Info("coordinator started",
		"resolution", cfg.Resolution,
		"workers", cfg.Workers,
		"maxdepth", cfg.MaxDepth,
		"span", span,
	)
	return c, nil
}

// Index returns the index managed by the coordinator. It must not be
// modified by the caller.
func (c *Coordinator) Index() *Index { return c.index }

// Config returns the configuration in use with defaults filled in.
func (c *Coordinator) Config() Config { return c.cfg }

// Update runs one frame of the coordinator without blocking on extraction:
//   - All results available are built into views and installed in their leaf.
//   - Ready leaves near focus are split if refinement is enabled.
//   - Extraction of all Empty leaves is dispatched.
//
// A failed extraction, view build or submission is returned as an error.
func (c *Coordinator) Update(focus ms3.Vec) error {
	if c.closed {
		return ErrClosed
	}
	for {
		var res result
		select {
		case res = <-c.results:
		default:
			return c.refineAndDispatch(focus)
		}
		if err := c.install(res); err != nil {
			return err
		}
	}
}

// Settle calls Update until no extraction is pending, blocking on results in between.
// It is useful for rendering a final mesh without a frame loop.
func (c *Coordinator) Settle(ctx context.Context, focus ms3.Vec) error {
	for {
		err := c.Update(focus)
		if err != nil {
			return err
		}
		if c.Stats().Pending == 0 {
			return nil
		}
		select {
		case res := <-c.results:
			if err := c.install(res); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Coordinator) install(res result) error {
	c.completed.Add(1)
	if res.err != nil {
		return res.err
	}
	view, err := c.vb.BuildView(res.buf.Vertices, res.buf.Indices)
	if err != nil {
		return fmt.Errorf("building view at %v: %w", res.center, err)
	}
	err = c.index.Install(res.center, view)
	if err != nil {
		if view != nil {
			view.Release()
		}
		return err
	}
	return nil
}

func (c *Coordinator) refineAndDispatch(focus ms3.Vec) error {
	if c.cfg.MaxDepth > 0 {
		for _, leaf := range c.index.ReadyLeaves() {
			if leaf.Depth() >= c.cfg.MaxDepth {
				continue
			}
			diag := ms3.Norm(leaf.Span().Size())
			if ms3.Norm(ms3.Sub(focus, leaf.Center())) < c.cfg.SplitFactor*diag {
				c.index.Split(leaf)
			}
		}
	}
	for _, leaf := range c.index.EmptyLeaves() {
		err := c.exec.Submit(c.job(leaf.Span()))
		if err != nil {
			return fmt.Errorf("submitting extraction at %v: %w", leaf.Center(), err)
		}
		c.submitted.Add(1)
		c.index.Request(leaf)
	}
	return nil
}

// job returns the extraction of the mesh of span. Panics during extraction
// are recovered and delivered as errors so the leaf is not left waiting.
func (c *Coordinator) job(span ms3.Box) func() {
	return func() {
		res := result{center: span.Center()}
		res.buf, res.err = c.extract(span)
		select {
		case <-c.done:
			c.discarded.Add(1)
			return
		default:
		}
		select {
		case c.results <- res:
		case <-c.done:
			c.discarded.Add(1)
		}
	}
}

func (c *Coordinator) extract(span ms3.Box) (buf glrender.Buffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			cantucci.Logger().Warn("recovered extraction panic", "span", span, "panic", r)
			err = fmt.Errorf("extraction at %v panicked: %v", span.Center(), r)
		}
	}()
	cache := c.cfg.Cache
	var key string
	if cache != nil {
		key = MeshKey(c.shapeID, span, c.cfg.Resolution)
		cached, found, err := cache.LoadMesh(key)
		if err != nil {
			cantucci.Logger().Warn("mesh cache load failed", "key", key, "err", err)
		} else if found {
			return cached, nil
		}
	}
	buf, err = glrender.SurfaceNets(span, c.shape, c.cfg.Resolution)
	if err != nil {
		return glrender.Buffer{}, fmt.Errorf("extraction at %v: %w", span.Center(), err)
	}
	if cache != nil {
		if err := cache.StoreMesh(key, buf); err != nil {
			cantucci.Logger().Warn("mesh cache store failed", "key", key, "err", err)
		}
	}
	return buf, nil
}

// ForEachView calls fn for every view to be drawn. See [Index.ForEachView].
func (c *Coordinator) ForEachView(fn func(v View, span ms3.Box)) {
	c.index.ForEachView(fn)
}

// Stats returns the job counters of the coordinator.
func (c *Coordinator) Stats() Stats {
	submitted := int(c.submitted.Load())
	completed := int(c.completed.Load())
	discarded := int(c.discarded.Load())
	return Stats{
		Submitted: submitted,
		Completed: completed,
		Pending:   submitted - completed - discarded,
		Discarded: discarded,
	}
}

// Close stops accepting results, waits for running jobs and releases all views.
// Results of jobs finishing after Close are discarded. Close is safe to call multiple times.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.closed = true
		close(c.done)
		c.exec.Close()
		// Results sent before done was closed were never received.
	drain:
		for {
			select {
			case <-c.results:
				c.discarded.Add(1)
			default:
				break drain
			}
		}
		c.index.Release()
		stats := c.Stats()
		lvl := cantucci.Logger().Info
		if stats.Discarded > 0 {
			lvl = cantucci.Logger().Warn
		}
		lvl("coordinator closed",
			"submitted", stats.Submitted,
			"completed", stats.Completed,
			"discarded", stats.Discarded,
		)
	})
}

// MeshKey returns the cache key of the mesh of a shape over span at resolution.
// shapeID identifies the shape, typically its distance estimator shader source.
func MeshKey(shapeID []byte, span ms3.Box, resolution int) string {
	h := sha256.New()
	h.Write(shapeID)
	var b [4*6 + 8]byte
	for i, f := range [6]float32{span.Min.X, span.Min.Y, span.Min.Z, span.Max.X, span.Max.Y, span.Max.Z} {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	binary.LittleEndian.PutUint64(b[24:], uint64(resolution))
	h.Write(b[:])
	return hex.EncodeToString(h.Sum(nil))
}
