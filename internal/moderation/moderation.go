// Package moderation decides whether a captured frame is worth keeping.
package moderation

import (
	"context"

	"exproctor/pkg/types"
)

// Filter reports whether an image should be persisted. Errors are of kind
// types.ErrModeration or types.ErrTimeout.
type Filter interface {
	ShouldPersist(ctx context.Context, image []byte) (bool, error)
}

// AlwaysPersist keeps every frame.
type AlwaysPersist struct{}

func (AlwaysPersist) ShouldPersist(ctx context.Context, image []byte) (bool, error) {
	return true, nil
}

// Gate applies a filter only to the listed evidence types; every other type
// is persisted unconditionally.
type Gate struct {
	Filter Filter
	Types  map[types.EvidenceType]bool
}

func NewGate(filter Filter, evidenceTypes ...types.EvidenceType) *Gate {
	g := &Gate{Filter: filter, Types: make(map[types.EvidenceType]bool, len(evidenceTypes))}
	for _, t := range evidenceTypes {
		g.Types[t] = true
	}
	return g
}

// Applies reports whether frames of type t go through the filter.
func (g *Gate) Applies(t types.EvidenceType) bool {
	if g == nil || g.Filter == nil {
		return false
	}
	return g.Types[t]
}
