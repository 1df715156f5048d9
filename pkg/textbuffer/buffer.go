package textbuffer

// Buffer is the currently displayed content and selection.
// It is not safe for concurrent use; callers serialize access.
type Buffer struct {
	content string
	sel     Selection
}

// NewBuffer creates a buffer holding content with the caret at its end.
func NewBuffer(content string) *Buffer {
	b := &Buffer{}
	b.ReplaceAll(content)
	return b
}

// Content returns the full text.
func (b *Buffer) Content() string {
	return b.content
}

// Selection returns the current selection.
func (b *Buffer) Selection() Selection {
	return b.sel
}

// Len returns the content length in code units.
func (b *Buffer) Len() int {
	return Len(b.content)
}

// Select moves the selection. Out-of-range offsets are clamped and a reversed
// pair is swapped so the buffer never holds an invalid selection.
func (b *Buffer) Select(sel Selection) {
	n := b.Len()
	sel.Start = clamp(sel.Start, 0, n)
	sel.End = clamp(sel.End, 0, n)
	if sel.Start > sel.End {
		sel.Start, sel.End = sel.End, sel.Start
	}
	b.sel = sel
}

// Insert replaces the current selection with text.
func (b *Buffer) Insert(text string) {
	b.content, b.sel = Insert(b.content, b.sel, text)
}

// DeleteBackward deletes the selection or the unit before the caret.
func (b *Buffer) DeleteBackward() {
	b.content, b.sel = DeleteBackward(b.content, b.sel)
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.content = ""
	b.sel = Caret(0)
}

// ReplaceAll sets the content wholesale and puts the caret at the end.
func (b *Buffer) ReplaceAll(text string) {
	b.content = text
	b.sel = Caret(Len(text))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
