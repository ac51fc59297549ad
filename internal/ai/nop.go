package ai

import (
	"context"

	"github.com/amishk599/jobdigest/internal/model"
)

// PassThrough is the Selector used when ai.enabled is false. It selects the
// first MaxBullets candidates in rank order with no LLM call.
type PassThrough struct{}

var _ Selector = PassThrough{}

// NewPassThrough returns a PassThrough selector.
func NewPassThrough() *PassThrough {
	return &PassThrough{}
}

// Select returns the leading candidates unchanged.
func (PassThrough) Select(_ context.Context, req Request) (Selection, error) {
	n := len(req.Candidates)
	if req.MaxBullets > 0 && n > req.MaxBullets {
		n = req.MaxBullets
	}
	return Selection{Matched: append([]model.Posting(nil), req.Candidates[:n]...), Submitted: n}, nil
}
