// Package textbuffer holds the editor's text content and selection and performs
// cursor-relative edits on it.
//
// Offsets are UTF-16 code units, the unit a browser textarea reports through
// selectionStart and selectionEnd, so positions sent by the UI can be applied
// without translation.
package textbuffer

import "unicode/utf16"

// Selection is a (Start, End) pair of code-unit offsets into the content.
// Start == End denotes a caret.
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Caret returns a zero-width selection at pos.
func Caret(pos int) Selection {
	return Selection{Start: pos, End: pos}
}

// IsCaret reports whether the selection has no extent.
func (s Selection) IsCaret() bool {
	return s.Start == s.End
}

// Valid reports whether 0 <= Start <= End <= length.
func (s Selection) Valid(length int) bool {
	return s.Start >= 0 && s.Start <= s.End && s.End <= length
}

// Len returns the length of content in code units.
func Len(content string) int {
	return len(encode(content))
}

// Insert replaces [sel.Start, sel.End) with text and places the caret right
// after the inserted text.
func Insert(content string, sel Selection, text string) (string, Selection) {
	units := encode(content)
	ins := encode(text)

	out := make([]uint16, 0, len(units)-(sel.End-sel.Start)+len(ins))
	out = append(out, units[:sel.Start]...)
	out = append(out, ins...)
	out = append(out, units[sel.End:]...)

	return decode(out), Caret(sel.Start + len(ins))
}

// DeleteBackward removes the selected range, or the single code unit before
// the caret when nothing is selected. A caret at 0 is left as is.
func DeleteBackward(content string, sel Selection) (string, Selection) {
	if sel.IsCaret() {
		if sel.Start == 0 {
			return content, sel
		}
		sel = Selection{Start: sel.Start - 1, End: sel.End}
	}

	units := encode(content)
	out := make([]uint16, 0, len(units)-(sel.End-sel.Start))
	out = append(out, units[:sel.Start]...)
	out = append(out, units[sel.End:]...)

	return decode(out), Caret(sel.Start)
}

func encode(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

func decode(u []uint16) string {
	return string(utf16.Decode(u))
}
