package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"fairlens/internal/logging"
)

// Stage is one node of the pipeline DAG. Consumes and Produces name the
// artifacts a stage reads and writes; the registry orders stages from them.
type Stage struct {
	ID       StageID
	Consumes []string
	Produces []string
	Run      func(ctx context.Context) error
}

// Registry holds registered stages and composes them into a runnable DAG.
type Registry struct {
	stages []Stage
}

// NewRegistry creates an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a stage. Duplicate IDs are rejected.
func (r *Registry) Register(s Stage) error {
	for _, existing := range r.stages {
		if existing.ID == s.ID {
			return fmt.Errorf("stage %s already registered", s.ID)
		}
	}
	r.stages = append(r.stages, s)
	return nil
}

// Get returns the stage with the given ID.
func (r *Registry) Get(id StageID) (Stage, bool) {
	for _, s := range r.stages {
		if s.ID == id {
			return s, true
		}
	}
	return Stage{}, false
}

// Levels orders stages into dependency levels: every stage in level N
// consumes only artifacts produced at levels < N. Stages that share a level
// have disjoint outputs and may run concurrently.
func (r *Registry) Levels() ([][]Stage, error) {
	produced := make(map[string]bool)
	remaining := append([]Stage(nil), r.stages...)
	var levels [][]Stage

	for len(remaining) > 0 {
		var level []Stage
		var next []Stage
		for _, s := range remaining {
			ready := true
			for _, c := range s.Consumes {
				if !produced[c] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, s)
			} else {
				next = append(next, s)
			}
		}
		if len(level) == 0 {
			return nil, fmt.Errorf("stage dependency cycle or missing producer among %d stages", len(remaining))
		}
		for _, s := range level {
			for _, p := range s.Produces {
				produced[p] = true
			}
		}
		levels = append(levels, level)
		remaining = next
	}
	return levels, nil
}

// RunAll executes every registered stage in dependency order. Stages within
// one level run concurrently under an errgroup: they own disjoint outputs
// and checkpoints, so the engine's single-writer discipline holds.
func (r *Registry) RunAll(ctx context.Context) error {
	levels, err := r.Levels()
	if err != nil {
		return err
	}
	for _, level := range levels {
		g, gctx := errgroup.WithContext(ctx)
		for _, s := range level {
			stage := s
			logging.Engine("[dag] launching stage %s", stage.ID)
			g.Go(func() error {
				return stage.Run(gctx)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}
