package editor

import "policyforge/api/internal/block"

// Editor is the rich-text widget a Binding drives. SetContent replaces the
// document and, like real editors, reports the replacement through the same
// change notification as a user edit, synchronously.
type Editor interface {
	HTML() string
	SetContent(html string)
}

// suppression swallows exactly one change notification. It is armed before
// the binding writes into the editor and dropped when that write returns.
type suppression struct {
	spent bool
}

func (s *suppression) consume() bool {
	if s == nil || s.spent {
		return false
	}
	s.spent = true
	return true
}

// Binding keeps one block and one editor in step. Block changes reach the
// editor through Sync; editor changes reach the caller through onChange.
type Binding struct {
	editor   Editor
	onChange func(block.Block)
	current  block.Block
	bound    bool
	pending  *suppression
}

func NewBinding(e Editor, onChange func(block.Block)) *Binding {
	return &Binding{editor: e, onChange: onChange}
}

// Block returns the block as last synced or edited.
func (bd *Binding) Block() block.Block {
	return bd.current
}

// Sync points the binding at b. The editor document is only overwritten
// when b has a different ID or type than the previous block and the
// normalized documents differ. It reports whether the editor was written.
func (bd *Binding) Sync(b block.Block) bool {
	changed := !bd.bound || b.ID != bd.current.ID || b.Type != bd.current.Type
	bd.current = b
	bd.bound = true
	if !changed {
		return false
	}

	target := ToDocument(b)
	if Normalize(bd.editor.HTML()) == Normalize(target) {
		return false
	}

	bd.pending = &suppression{}
	defer func() { bd.pending = nil }()
	bd.editor.SetContent(target)
	return true
}

// OnUpdate must be called for every editor change notification.
func (bd *Binding) OnUpdate() {
	if bd.pending.consume() {
		return
	}
	if !bd.bound {
		return
	}
	bd.current = FromDocument(bd.current, bd.editor.HTML())
	if bd.onChange != nil {
		bd.onChange(bd.current)
	}
}
