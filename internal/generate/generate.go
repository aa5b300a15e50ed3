// Package generate turns a topic into policy blocks using a text-generation
// backend.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"policyforge/api/internal/block"
	"policyforge/api/internal/util"
)

// ErrProviderUnavailable is matched by every failure that originates in the
// generation backend, including unparseable output.
var ErrProviderUnavailable = errors.New("generation provider unavailable")

// ProviderError carries the upstream detail of a backend failure. The
// detail is for logs only and must not be shown to clients.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("generate %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProviderUnavailable }

func providerError(op string, err error) error {
	return &ProviderError{Op: op, Err: err}
}

// Result is one generated draft.
type Result struct {
	Blocks      []block.Block
	GeneratedBy string
}

type Generator interface {
	Generate(ctx context.Context, topic string) (Result, error)
}

var fence = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)\\s*```")

// ExtractJSON pulls a JSON array of objects out of model output that may be
// wrapped in a code fence or surrounded by prose.
func ExtractJSON(text string) ([]block.Raw, error) {
	raw := text
	if m := fence.FindStringSubmatch(text); m != nil {
		raw = m[1]
	}
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end < start {
		return nil, errors.New("no JSON array in response")
	}
	var out []block.Raw
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("decode blocks: %w", err)
	}
	for i, b := range out {
		if b == nil {
			return nil, fmt.Errorf("block %d is not an object", i)
		}
	}
	return out, nil
}

// Finalize backfills missing or repeated ids, assigns orders by position and
// canonicalizes every block. The first block to use an id keeps it.
func Finalize(raws []block.Raw) []block.Block {
	out := make([]block.Block, len(raws))
	seen := make(map[string]bool, len(raws))
	for i, raw := range raws {
		filled := make(block.Raw, len(raw)+2)
		for k, v := range raw {
			filled[k] = v
		}
		if id, _ := filled["id"].(string); strings.TrimSpace(id) == "" {
			filled["id"] = util.NewID()
		}
		filled["order"] = float64(i + 1)
		out[i] = block.Canonicalize(filled, i)
		for seen[out[i].ID] {
			out[i].ID = util.NewID()
		}
		seen[out[i].ID] = true
	}
	return out
}
