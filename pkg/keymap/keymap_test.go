package keymap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault_Bindings(t *testing.T) {
	km := Default()

	tests := []struct {
		chord Chord
		want  Action
	}{
		{Chord{Ctrl: true, Key: "z"}, ActionUndo},
		{Chord{Ctrl: true, Key: "s"}, ActionExport},
		{Chord{Ctrl: true, Key: "o"}, ActionImport},
	}
	for _, tt := range tests {
		t.Run(tt.chord.String(), func(t *testing.T) {
			got, ok := km.Resolve(tt.chord, true)
			require.True(t, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_RequiresFocus(t *testing.T) {
	_, ok := Default().Resolve(Chord{Ctrl: true, Key: "z"}, false)
	require.False(t, ok)
}

func TestResolve_Unbound(t *testing.T) {
	km := Default()

	_, ok := km.Resolve(Chord{Key: "z"}, true)
	require.False(t, ok, "plain z types a character")

	_, ok = km.Resolve(Chord{Ctrl: true, Shift: true, Key: "Z"}, true)
	require.False(t, ok)
}

func TestChord_String(t *testing.T) {
	require.Equal(t, "Ctrl+Shift+Z", Chord{Ctrl: true, Shift: true, Key: "z"}.String())
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("export")
	require.NoError(t, err)
	require.Equal(t, ActionExport, a)

	_, err = ParseAction("redo")
	require.Error(t, err)
}

func TestResolve_ExtraModifiersWithCtrl(t *testing.T) {
	km := Default()

	got, ok := km.Resolve(Chord{Ctrl: true, Alt: true, Key: "z"}, true)
	require.True(t, ok)
	require.Equal(t, ActionUndo, got)

	got, ok = km.Resolve(Chord{Ctrl: true, Meta: true, Key: "s"}, true)
	require.True(t, ok)
	require.Equal(t, ActionExport, got)

	_, ok = km.Resolve(Chord{Alt: true, Key: "z"}, true)
	require.False(t, ok, "without Ctrl nothing resolves")
}

func TestResolve_ExactBindingWins(t *testing.T) {
	km := Default()
	km.Bind(Chord{Ctrl: true, Alt: true, Key: "s"}, ActionImport)

	got, ok := km.Resolve(Chord{Ctrl: true, Alt: true, Key: "s"}, true)
	require.True(t, ok)
	require.Equal(t, ActionImport, got)
}
