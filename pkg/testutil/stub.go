// Package testutil provides testing utilities for code built on the plugin
// contract: a scriptable stub renderer and a harness that wires stubs into a
// catalog, an in-memory config and a memory surface.
package testutil

import (
	"context"
	"sync"
	"time"

	"infodisplay/pkg/plugin"
	"infodisplay/pkg/surface"
)

// Stub is a scriptable plugin. By default every render succeeds and paints
// a white frame when a surface is attached.
type Stub struct {
	name        string
	description string
	interval    time.Duration

	mu        sync.Mutex
	result    bool
	panicWith any
	renderFn  func(ctx context.Context) bool
	surface   surface.Surface
	renders   int
	cleanups  int
	lastCtx   context.Context
}

// NewStub creates a stub that succeeds.
func NewStub(name string, interval time.Duration) *Stub {
	return &Stub{
		name:        name,
		description: "Stub plugin " + name,
		interval:    interval,
		result:      true,
	}
}

func (s *Stub) Name() string                  { return s.name }
func (s *Stub) Description() string           { return s.description }
func (s *Stub) UpdateInterval() time.Duration { return s.interval }

// Render counts the call, then panics, delegates or returns the scripted
// result.
func (s *Stub) Render(ctx context.Context) bool {
	s.mu.Lock()
	s.renders++
	s.lastCtx = ctx
	panicWith := s.panicWith
	fn := s.renderFn
	result := s.result
	display := s.surface
	s.mu.Unlock()

	if panicWith != nil {
		panic(panicWith)
	}
	if fn != nil {
		return fn(ctx)
	}
	if result && display != nil {
		if err := display.Paint(surface.NewFrame(display, surface.White)); err != nil {
			return false
		}
	}
	return result
}

// Cleanup counts the call.
func (s *Stub) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups++
}

// SetResult scripts the value Render returns.
func (s *Stub) SetResult(ok bool) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = ok
	return s
}

// SetPanic makes Render panic with v. A nil v disables the panic.
func (s *Stub) SetPanic(v any) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panicWith = v
	return s
}

// SetRenderFunc replaces the render body.
func (s *Stub) SetRenderFunc(fn func(ctx context.Context) bool) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderFn = fn
	return s
}

// Renders returns how many times Render was called.
func (s *Stub) Renders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renders
}

// Cleanups returns how many times Cleanup was called.
func (s *Stub) Cleanups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanups
}

// LastContext returns the context passed to the latest Render.
func (s *Stub) LastContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCtx
}

// Factory returns a factory that hands out this stub and attaches the
// context's surface to it.
func (s *Stub) Factory() plugin.Factory {
	return func(ctx *plugin.Context) (plugin.Plugin, error) {
		s.mu.Lock()
		s.surface = ctx.Surface
		s.mu.Unlock()
		return s, nil
	}
}
