package editor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"policyforge/api/internal/block"
	"policyforge/api/internal/util"
)

var ErrBlockNotFound = errors.New("block not found")

var lineSplit = regexp.MustCompile(`\r?\n`)

// Saver persists a full block list, replacing whatever was stored.
type Saver interface {
	UpdateBlocks(ctx context.Context, policyID string, blocks []block.Block) (block.Policy, error)
}

// Session is a local, optimistically updated copy of one policy's blocks.
// Mutations apply immediately and renumber orders to 1..N; nothing is sent
// anywhere until Save.
type Session struct {
	mu       sync.Mutex
	policyID string
	blocks   []block.Block
	dirty    bool
	newID    func() string
}

func NewSession(p block.Policy) *Session {
	return &Session{
		policyID: p.ID,
		blocks:   block.Renumber(p.Blocks),
		newID:    util.NewID,
	}
}

// Blocks returns a copy of the blocks in display order.
func (s *Session) Blocks() []block.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.blocks)
}

// Dirty reports whether there are unsaved changes.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Session) set(next []block.Block) {
	for i := range next {
		next[i].Order = float64(i + 1)
	}
	s.blocks = next
	s.dirty = true
}

func (s *Session) index(id string) int {
	return slices.IndexFunc(s.blocks, func(b block.Block) bool { return b.ID == id })
}

// Update replaces the title and content of block id with those of b.
func (s *Session) Update(id string, b block.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	next := slices.Clone(s.blocks)
	next[i].Title = b.Title
	next[i].Content = b.Content
	s.set(next)
	return nil
}

// AddAfter inserts an empty paragraph after position index (-1 inserts at
// the top) and returns it.
func (s *Session) AddAfter(index int) block.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	index = min(max(index, -1), len(s.blocks)-1)
	nb := block.Block{
		ID:      s.newID(),
		Type:    block.TypeParagraph,
		Content: block.Content{Format: block.FormatPlain},
	}
	next := slices.Insert(slices.Clone(s.blocks), index+1, nb)
	s.set(next)
	return next[index+1]
}

func (s *Session) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	s.set(slices.Delete(slices.Clone(s.blocks), i, i+1))
	return nil
}

// ChangeType converts block id to t, carrying its text over: a list gets
// one item per line, a heading gets the text as title and content.
func (s *Session) ChangeType(id string, t block.Type) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	next := slices.Clone(s.blocks)
	b := next[i]
	if b.Type == t {
		return nil
	}
	text := strings.TrimSpace(b.PlainText())

	switch t {
	case block.TypeList:
		items := []string{}
		for _, line := range lineSplit.Split(text, -1) {
			if line = strings.TrimSpace(line); line != "" {
				items = append(items, line)
			}
		}
		b = block.Block{ID: b.ID, Type: t, Order: b.Order, Content: block.Content{Format: block.FormatPlain, Items: items}}
	case block.TypeHeading:
		b = block.Block{ID: b.ID, Type: t, Order: b.Order, Title: text, Content: block.Content{Format: block.FormatPlain, Text: text}}
	default:
		b = block.Block{ID: b.ID, Type: block.TypeParagraph, Order: b.Order, Content: block.Content{Format: block.FormatPlain, Text: text}}
	}
	next[i] = b
	s.set(next)
	return nil
}

// MoveBy shifts block id by delta positions. Moves past either end are
// ignored.
func (s *Session) MoveBy(id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	s.move(i, i+delta)
	return nil
}

// Move relocates the block at position from to position to, as a drag and
// drop does.
func (s *Session) Move(from, to int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.move(from, to)
}

func (s *Session) move(from, to int) {
	if from == to || from < 0 || from >= len(s.blocks) || to < 0 || to >= len(s.blocks) {
		return
	}
	next := slices.Clone(s.blocks)
	moved := next[from]
	next = slices.Delete(next, from, from+1)
	next = slices.Insert(next, to, moved)
	s.set(next)
}

// Save sends the full block list. Sending the same list twice leaves the
// stored policy unchanged, so a failed Save can simply be retried.
func (s *Session) Save(ctx context.Context, saver Saver) (block.Policy, error) {
	blocks := s.Blocks()
	p, err := saver.UpdateBlocks(ctx, s.policyID, blocks)
	if err != nil {
		return block.Policy{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.EqualFunc(s.blocks, blocks, blocksEqual) {
		s.blocks = block.Renumber(p.Blocks)
		s.dirty = false
	}
	return p, nil
}

func blocksEqual(a, b block.Block) bool {
	return a.ID == b.ID && a.Type == b.Type && a.Title == b.Title && a.Order == b.Order &&
		a.Content.Format == b.Content.Format && a.Content.Text == b.Content.Text &&
		slices.Equal(a.Content.Items, b.Content.Items)
}
