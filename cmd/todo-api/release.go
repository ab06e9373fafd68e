package main

import (
	"context"

	"github.com/jds-integration/integration/pkg/observability"
)

// releaseStack holds cleanup for resources opened during startup
type releaseStack struct {
	funcs []observability.ShutdownFunc
}

func (r *releaseStack) push(fn observability.ShutdownFunc) {
	r.funcs = append(r.funcs, fn)
}

// run releases in reverse order of acquisition
func (r *releaseStack) run(ctx context.Context, logger *observability.Logger) {
	for i := len(r.funcs) - 1; i >= 0; i-- {
		if err := r.funcs[i](ctx); err != nil {
			logger.WithError(err).Error("Startup cleanup failed")
		}
	}
	r.funcs = nil
}

// handOff moves ownership to the shutdown manager, which runs the functions after
// the servers stop, most recently acquired first
func (r *releaseStack) handOff(sm *observability.ShutdownManager) {
	for i := len(r.funcs) - 1; i >= 0; i-- {
		sm.RegisterShutdownFunc(r.funcs[i])
	}
	r.funcs = nil
}
