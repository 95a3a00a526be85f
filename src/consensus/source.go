package consensus

import (
	"context"

	"gextrader/src/model"
)

// Source is one voter in the collective decision. Implementations wrap the
// setup engine, external signal feeds or anything else that can form a view
// on a symbol for the current cycle.
type Source interface {
	ID() string
	Opine(ctx context.Context, symbol string) (model.Opinion, error)
}

// SourceFunc adapts a closure into a Source.
type SourceFunc struct {
	Name string
	Fn   func(ctx context.Context, symbol string) (model.Opinion, error)
}

func (s SourceFunc) ID() string { return s.Name }

func (s SourceFunc) Opine(ctx context.Context, symbol string) (model.Opinion, error) {
	return s.Fn(ctx, symbol)
}
