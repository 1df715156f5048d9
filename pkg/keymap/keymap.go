// Package keymap resolves keyboard chords from the edit surface to editor
// actions.
package keymap

import (
	"fmt"
	"strings"
)

// Action is what a shortcut asks the editor to do.
type Action string

const (
	ActionUndo   Action = "undo"
	ActionExport Action = "export"
	ActionImport Action = "import"
)

// Chord is a key press with its modifiers, as reported by the browser.
type Chord struct {
	Ctrl  bool   `json:"ctrl"`
	Shift bool   `json:"shift"`
	Alt   bool   `json:"alt"`
	Meta  bool   `json:"meta"`
	Key   string `json:"key"`
}

func (c Chord) String() string {
	var b strings.Builder
	if c.Ctrl {
		b.WriteString("Ctrl+")
	}
	if c.Alt {
		b.WriteString("Alt+")
	}
	if c.Shift {
		b.WriteString("Shift+")
	}
	if c.Meta {
		b.WriteString("Meta+")
	}
	b.WriteString(strings.ToUpper(c.Key))
	return b.String()
}

// Keymap maps chords to actions.
type Keymap struct {
	bindings map[Chord]Action
}

// Default returns the editor's bindings: Ctrl+Z undo, Ctrl+S export,
// Ctrl+O import.
func Default() *Keymap {
	km := &Keymap{bindings: make(map[Chord]Action)}
	km.Bind(Chord{Ctrl: true, Key: "z"}, ActionUndo)
	km.Bind(Chord{Ctrl: true, Key: "s"}, ActionExport)
	km.Bind(Chord{Ctrl: true, Key: "o"}, ActionImport)
	return km
}

// Bind adds or replaces a binding. Keys are case sensitive, matching
// KeyboardEvent.key: Ctrl+Shift+Z reports "Z" and does not trigger Ctrl+Z.
func (km *Keymap) Bind(c Chord, a Action) {
	km.bindings[c] = a
}

// Resolve returns the action bound to c. Nothing resolves while the edit
// surface is not focused. An exact binding wins; otherwise a Ctrl chord
// matches the Ctrl+key binding whatever other modifiers are held, so
// Ctrl+Alt+z still undoes.
func (km *Keymap) Resolve(c Chord, focused bool) (Action, bool) {
	if !focused {
		return "", false
	}
	if a, ok := km.bindings[c]; ok {
		return a, true
	}
	if !c.Ctrl {
		return "", false
	}
	a, ok := km.bindings[Chord{Ctrl: true, Key: c.Key}]
	return a, ok
}

// ParseAction validates an action name coming from a client.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionUndo, ActionExport, ActionImport:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}
