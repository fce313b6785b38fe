package server

import (
	"context"
	"fmt"
)

// pingable is anything that can report its own reachability, such as the
// search index or the blob store.
type pingable interface {
	Ping(ctx context.Context) error
}

// DependencyPinger adapts a component with a Ping method into a named Pinger
// for GET /api/ready.
type DependencyPinger struct {
	// name identifies the dependency in readiness responses (e.g. "qdrant").
	name string
	// dep is the component to probe.
	dep pingable
}

// NewDependencyPinger labels dep as name for readiness responses.
func NewDependencyPinger(name string, dep pingable) *DependencyPinger {
	return &DependencyPinger{name: name, dep: dep}
}

// Name returns the dependency label used in readiness responses.
func (p *DependencyPinger) Name() string { return p.name }

// Ping delegates to the wrapped component.
func (p *DependencyPinger) Ping(ctx context.Context) error {
	if err := p.dep.Ping(ctx); err != nil {
		return fmt.Errorf("%s unreachable: %w", p.name, err)
	}
	return nil
}
