package engines

import (
	"github.com/samber/lo"

	"github.com/wippyai/ceval/errors"
	"github.com/wippyai/ceval/worker"
)

// Standard is the variant key of regular chess.
const Standard = "standard"

// Info describes an engine build the application can run.
type Info struct {
	ID   string
	Name string
	// Variants lists the supported variant keys. Empty means standard only.
	Variants   []string
	MaxThreads int
	MaxHashMB  int
	// Strategy builds the boot strategy for a new worker.
	Strategy func() worker.Strategy
}

// Supports reports whether the engine can analyze variant.
func (i Info) Supports(variant string) bool {
	if variant == "" {
		variant = Standard
	}
	if len(i.Variants) == 0 {
		return variant == Standard
	}
	return lo.Contains(i.Variants, variant)
}

// NewWorker creates a controller for the engine. Nothing boots until the
// controller is started.
func (i Info) NewWorker(opts worker.Options) (*worker.Controller, error) {
	if i.Strategy == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "engine "+i.ID+" has no boot strategy")
	}
	if opts.Name == "" {
		opts.Name = i.ID
	}
	return worker.New(i.Strategy(), opts), nil
}

// Registry is an ordered set of engines. Earlier entries are preferred.
type Registry struct {
	engines []Info
}

// NewRegistry creates a registry. Entries with a duplicate ID are dropped.
func NewRegistry(engines ...Info) *Registry {
	return &Registry{engines: lo.UniqBy(engines, func(i Info) string { return i.ID })}
}

// Get returns the engine with the given ID.
func (r *Registry) Get(id string) (Info, bool) {
	return lo.Find(r.engines, func(i Info) bool { return i.ID == id })
}

// IDs lists the registered engine IDs in preference order.
func (r *Registry) IDs() []string {
	return lo.Map(r.engines, func(i Info, _ int) string { return i.ID })
}

// Supporting returns the engines able to analyze variant.
func (r *Registry) Supporting(variant string) []Info {
	return lo.Filter(r.engines, func(i Info, _ int) bool { return i.Supports(variant) })
}

// Select returns the engine with the given ID when it supports variant,
// otherwise the preferred engine for variant.
func (r *Registry) Select(id, variant string) (Info, error) {
	if info, ok := r.Get(id); ok && info.Supports(variant) {
		return info, nil
	}
	return r.Default(variant)
}

// Default returns the preferred engine for variant.
func (r *Registry) Default(variant string) (Info, error) {
	supporting := r.Supporting(variant)
	if len(supporting) == 0 {
		if variant == "" {
			variant = Standard
		}
		return Info{}, errors.NotFound(errors.PhaseConfig, "engine for variant", variant)
	}
	return supporting[0], nil
}
