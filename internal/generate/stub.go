package generate

import (
	"context"

	"policyforge/api/internal/block"
)

// StubGenerator stands in for a real backend: every topic yields a single
// "Draft" heading.
type StubGenerator struct{}

func (StubGenerator) Generate(_ context.Context, _ string) (Result, error) {
	raws := []block.Raw{{"type": "heading", "content": "Draft"}}
	return Result{Blocks: Finalize(raws), GeneratedBy: "stub"}, nil
}
