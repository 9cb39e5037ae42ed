// Package cantucciaux provides outer surfaces for getting started with cantucci
// quickly: headless mesh rendering to STL, distance field slices to PNG
// and an interactive viewer.
package cantucciaux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	math "github.com/chewxy/math32"
	"github.com/soypat/cantucci"
	"github.com/soypat/cantucci/glbuild"
	"github.com/soypat/cantucci/gleval"
	"github.com/soypat/cantucci/glrender"
	"github.com/soypat/cantucci/glview"
	"github.com/soypat/cantucci/meshstore"
	"github.com/soypat/cantucci/shapemesh"
	"github.com/soypat/geometry/ms3"
)

type RenderConfig struct {
	STLOutput    io.Writer
	VisualOutput io.Writer
	// Resolution is the amount of cells per axis of each leaf mesh. Must be a power of two.
	Resolution int
	// MaxDepth is the maximum refinement depth of the mesh index.
	// Leaves close to Focus are refined until MaxDepth is reached.
	MaxDepth int
	Workers  int
	Focus    ms3.Vec
	// CacheFile is the path of a mesh database. Meshes found in it are not extracted again.
	CacheFile string
	// Timeout bounds the time spent extracting meshes. Zero means no timeout.
	Timeout time.Duration
	Silent  bool
}

// Render is an auxiliary function to aid users in getting setup in using cantucci quickly.
// It meshes s over its bounds, waiting for all extractions to complete, and writes the result.
func Render(s cantucci.Shape, cfg RenderConfig) (err error) {
	if cfg.STLOutput == nil && cfg.VisualOutput == nil {
		return errors.New("Render requires output parameter in config")
	}
	log := func(args ...any) {
		if !cfg.Silent {
			fmt.Println(args...)
		}
	}
	if cfg.VisualOutput != nil {
		watch := stopwatch()
		_, err = glbuild.WriteShaderToyVisualizer(cfg.VisualOutput, s)
		if err != nil {
			return fmt.Errorf("writing visual GLSL: %w", err)
		}
		log("wrote", outputName(cfg.VisualOutput, "GLSL visualization"), "in", watch())
	}
	if cfg.STLOutput == nil {
		return nil
	}

	counted := newCountingShape(s)
	meshCfg := shapemesh.Config{
		Resolution: cfg.Resolution,
		MaxDepth:   cfg.MaxDepth,
		Workers:    cfg.Workers,
	}
	if cfg.CacheFile != "" {
		store, err := meshstore.Open(cfg.CacheFile)
		if err != nil {
			return err
		}
		defer store.Close()
		meshCfg.Cache = store
	}
	var builder glview.MemoryBuilder
	coord, err := shapemesh.NewCoordinator(counted, s.Bounds(), &builder, meshCfg)
	if err != nil {
		return err
	}
	defer coord.Close()

	ctx := context.Background()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	watch := stopwatch()
	err = coord.Settle(ctx, cfg.Focus)
	if err != nil {
		return fmt.Errorf("extracting meshes: %w", err)
	}
	merged, err := glview.Merge(coord.Index())
	if err != nil {
		return err
	}
	_, requested, ready := coord.Index().Count()
	stats := coord.Stats()
	log("extracted", ready, "leaf meshes with", len(merged.Vertices), "vertices in", watch(),
		"with", stats.Submitted, "jobs;", requested, "leaves pending")
	evals := counted.Evaluations()
	if ready > 0 {
		// Every leaf samples its (resolution+1)³ corners once.
		res := uint64(coord.Config().Resolution) + 1
		corners := uint64(stats.Submitted) * res * res * res
		log("evaluated SDF", evals, "times,", percentUint64(evals, corners), "percent of sampled corners")
	}

	watch = stopwatch()
	triangles := merged.Triangles()
	_, err = glrender.WriteBinarySTL(cfg.STLOutput, triangles)
	if err != nil {
		return fmt.Errorf("writing STL file: %w", err)
	}
	log("wrote", len(triangles), "triangles to", outputName(cfg.STLOutput, "STL"), "in", watch())
	return nil
}

// countingShape counts the distance evaluations issued by mesh extraction.
type countingShape struct {
	cantucci.Shape
	counter *gleval.CountingSDF3
}

func newCountingShape(s cantucci.Shape) *countingShape {
	return &countingShape{Shape: s, counter: gleval.NewCountingSDF3(s)}
}

func (cs *countingShape) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	return cs.counter.Evaluate(pos, dist, userData)
}

func (cs *countingShape) Evaluations() uint64 { return cs.counter.Evaluations() }

func outputName(w io.Writer, defaultName string) string {
	if fp, ok := w.(*os.File); ok {
		return fp.Name()
	}
	return defaultName
}

func stopwatch() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}

func percentUint64(num, denom uint64) float32 {
	if denom == 0 {
		return 0
	}
	return math.Trunc(10000*float32(num)/float32(denom)) / 100
}
