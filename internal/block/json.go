package block

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type wireBlock struct {
	ID      string  `json:"id"`
	Type    Type    `json:"type"`
	Title   string  `json:"title,omitempty"`
	Content any     `json:"content"`
	Format  Format  `json:"format"`
	Order   float64 `json:"order"`
}

func (b Block) MarshalJSON() ([]byte, error) {
	w := wireBlock{
		ID:     b.ID,
		Type:   b.Type,
		Title:  b.Title,
		Format: b.Content.Format,
		Order:  b.Order,
	}
	if w.Format == "" {
		w.Format = FormatPlain
	}
	if b.Type == TypeList {
		items := b.Content.Items
		if items == nil {
			items = []string{}
		}
		w.Content = items
	} else {
		w.Content = b.Content.Text
	}
	return json.Marshal(w)
}

// UnmarshalJSON canonicalizes a single block. Without an explicit order the
// block gets order 1; use Decode for arrays.
func (b *Block) UnmarshalJSON(data []byte) error {
	var raw Raw
	if err := decodeNumbers(data, &raw); err != nil {
		return err
	}
	*b = Canonicalize(raw, 0)
	return nil
}

// Decode parses a JSON array of raw blocks and canonicalizes it.
func Decode(data []byte) ([]Block, error) {
	var raws []Raw
	if err := decodeNumbers(data, &raws); err != nil {
		return nil, fmt.Errorf("decode blocks: %w", err)
	}
	for i, raw := range raws {
		if raw == nil {
			raws[i] = Raw{}
		}
	}
	return CanonicalizeAll(raws), nil
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
