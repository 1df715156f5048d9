// Package editor composes the text buffer, the undo history and the persisted
// slot into one editing session.
//
// Every content change is persisted (best-effort) and then committed to the
// history. A Session is not safe for concurrent use: the room that owns it
// runs one command at a time.
package editor

import (
	"context"
	"errors"
	"time"

	"github.com/tliron/commonlog"

	"poker-hand-editor/pkg/db"
	"poker-hand-editor/pkg/history"
	"poker-hand-editor/pkg/textbuffer"
)

var log = commonlog.GetLogger("poker-editor.editor")

var (
	// ErrClearNotConfirmed is returned by Clear when the user did not confirm.
	ErrClearNotConfirmed = errors.New("clear not confirmed")
	// ErrInvalidSelection is returned when offsets break 0 <= start <= end <= len.
	ErrInvalidSelection = errors.New("invalid selection")
)

// Options tunes a Session.
type Options struct {
	MaxHistorySize int
	NoticeDuration time.Duration
	PersistTimeout time.Duration
	// Now is the clock used for export file names.
	Now func() time.Time
}

// State is a read-only view of a session.
type State struct {
	Content      string               `json:"content"`
	Selection    textbuffer.Selection `json:"selection"`
	HistoryLen   int                  `json:"history_len"`
	HistoryIndex int                  `json:"history_index"`
	CanUndo      bool                 `json:"can_undo"`
}

// Session is one editor: buffer, history and the slot it persists into.
type Session struct {
	buf     *textbuffer.Buffer
	history *history.Manager
	store   db.ISlotStore
	slot    db.Slot

	noticeDuration time.Duration
	persistTimeout time.Duration
	now            func() time.Time
}

// NewSession seeds a session from the slot and records the initial snapshot.
// A missing, empty or unreadable slot starts the session empty.
func NewSession(ctx context.Context, store db.ISlotStore, slot db.Slot, opts Options) *Session {
	if opts.NoticeDuration <= 0 {
		opts.NoticeDuration = DefaultNoticeDuration
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Session{
		buf:            textbuffer.NewBuffer(""),
		history:        history.NewManager(opts.MaxHistorySize),
		store:          store,
		slot:           slot,
		noticeDuration: opts.NoticeDuration,
		persistTimeout: opts.PersistTimeout,
		now:            opts.Now,
	}

	s.load(ctx)
	s.history.Commit(s.buf.Content())
	return s
}

func (s *Session) load(ctx context.Context) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()

	rec, err := s.store.Load(ctx, s.slot)
	switch {
	case errors.Is(err, db.ErrSlotNotFound):
		return
	case err != nil:
		log.Warningf("failed to load slot %s/%s: %v", s.slot.Namespace, s.slot.Key, err)
		return
	}
	if rec.Content != "" {
		s.buf.ReplaceAll(rec.Content)
	}
}

// persist writes the buffer into the slot. Failures are logged only.
func (s *Session) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()

	if _, err := s.store.Save(ctx, s.slot, s.buf.Content()); err != nil {
		log.Warningf("failed to save slot %s/%s: %v", s.slot.Namespace, s.slot.Key, err)
	}
}

// changed runs after every content mutation.
func (s *Session) changed(ctx context.Context) {
	s.persist(ctx)
	s.history.Commit(s.buf.Content())
}

func (s *Session) selectChecked(sel textbuffer.Selection) error {
	if !sel.Valid(s.buf.Len()) {
		return ErrInvalidSelection
	}
	s.buf.Select(sel)
	return nil
}

// Insert replaces sel with text, as a keyboard button does.
func (s *Session) Insert(ctx context.Context, text string, sel textbuffer.Selection) (State, error) {
	if err := s.selectChecked(sel); err != nil {
		return s.State(), err
	}
	s.buf.Insert(text)
	s.changed(ctx)
	return s.State(), nil
}

// Backspace deletes sel, or the unit before the caret.
func (s *Session) Backspace(ctx context.Context, sel textbuffer.Selection) (State, error) {
	if err := s.selectChecked(sel); err != nil {
		return s.State(), err
	}
	s.buf.DeleteBackward()
	s.changed(ctx)
	return s.State(), nil
}

// Clear empties the buffer once the user has confirmed.
func (s *Session) Clear(ctx context.Context, confirmed bool) (State, error) {
	if !confirmed {
		return s.State(), ErrClearNotConfirmed
	}
	s.buf.Clear()
	s.changed(ctx)
	return s.State(), nil
}

// Edit takes the edit surface's own new value after free typing.
func (s *Session) Edit(ctx context.Context, content string, sel textbuffer.Selection) (State, error) {
	s.buf.ReplaceAll(content)
	if sel.Valid(s.buf.Len()) {
		s.buf.Select(sel)
	}
	s.changed(ctx)
	return s.State(), nil
}

// Undo restores the previous snapshot. At the oldest retained snapshot it
// reports false and changes nothing.
func (s *Session) Undo(ctx context.Context) (State, bool) {
	content, ok := s.history.Undo()
	if !ok {
		return s.State(), false
	}
	s.buf.ReplaceAll(content)
	s.persist(ctx)
	return s.State(), true
}

// State returns the current view of the session.
func (s *Session) State() State {
	return State{
		Content:      s.buf.Content(),
		Selection:    s.buf.Selection(),
		HistoryLen:   s.history.Len(),
		HistoryIndex: s.history.Index(),
		CanUndo:      s.history.CanUndo(),
	}
}

// Content returns the buffer text.
func (s *Session) Content() string {
	return s.buf.Content()
}

// Slot returns the slot the session persists into.
func (s *Session) Slot() db.Slot {
	return s.slot
}

// Snapshots returns the retained history, oldest first.
func (s *Session) Snapshots() []string {
	return s.history.Snapshots()
}
