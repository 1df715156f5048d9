package handlers

import (
	"context"
	"errors"
	"fmt"

	"poker-hand-editor/pkg/editor"
	"poker-hand-editor/pkg/keymap"
	"poker-hand-editor/pkg/room"
	"poker-hand-editor/pkg/textbuffer"
)

// Commands shared by the REST and WebSocket surfaces. Each runs inside the
// room loop.

func stateCmd() room.CommandFunc {
	return func(_ context.Context, s *editor.Session) room.Result {
		return room.Result{State: s.State()}
	}
}

func insertCmd(text string, sel textbuffer.Selection) room.CommandFunc {
	return func(ctx context.Context, s *editor.Session) room.Result {
		st, err := s.Insert(ctx, text, sel)
		return mutation(s, st, err)
	}
}

func backspaceCmd(sel textbuffer.Selection) room.CommandFunc {
	return func(ctx context.Context, s *editor.Session) room.Result {
		st, err := s.Backspace(ctx, sel)
		return mutation(s, st, err)
	}
}

func clearCmd(confirmed bool) room.CommandFunc {
	return func(ctx context.Context, s *editor.Session) room.Result {
		st, err := s.Clear(ctx, confirmed)
		return mutation(s, st, err)
	}
}

func editCmd(content string, sel textbuffer.Selection) room.CommandFunc {
	return func(ctx context.Context, s *editor.Session) room.Result {
		st, err := s.Edit(ctx, content, sel)
		return mutation(s, st, err)
	}
}

func undoCmd() room.CommandFunc {
	return func(ctx context.Context, s *editor.Session) room.Result {
		st, ok := s.Undo(ctx)
		return room.Result{State: st, Changed: ok}
	}
}

func importCmd(content string) room.CommandFunc {
	return guarded(editor.MsgImportFailed, editor.ErrImportFailed, func(ctx context.Context, s *editor.Session) room.Result {
		n := s.Success(editor.MsgImported)
		return room.Result{State: s.Import(ctx, content), Changed: true, Notice: &n}
	})
}

func exportCmd() room.CommandFunc {
	return guarded(editor.MsgExportFailed, editor.ErrExportFailed, func(_ context.Context, s *editor.Session) room.Result {
		exp, err := s.Export()
		if err != nil {
			n := s.Failure(editor.MsgNothingToExport)
			return room.Result{State: s.State(), Notice: &n, Err: err}
		}
		n := s.Success(editor.MsgExported)
		return room.Result{State: s.State(), Export: &exp, Notice: &n}
	})
}

// guarded turns a panic inside cmd into a failure notice, so a broken export
// or import is reported to the user and the room keeps running. A panic after
// Import has replaced the buffer still reports the state as changed.
func guarded(text string, kind error, cmd room.CommandFunc) room.CommandFunc {
	return func(ctx context.Context, s *editor.Session) (res room.Result) {
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("%w: %v", kind, rec)
				log.Errorf("%v", err)
				n := s.Failure(text)
				res = room.Result{State: s.State(), Changed: true, Notice: &n, Err: err}
			}
		}()
		return cmd(ctx, s)
	}
}

// failureNoticeCmd only builds a notice with the session's display settings.
func failureNoticeCmd(text string, err error) room.CommandFunc {
	return func(_ context.Context, s *editor.Session) room.Result {
		n := s.Failure(text)
		return room.Result{State: s.State(), Notice: &n, Err: err}
	}
}

// shortcutCmd runs the action bound to a chord. Import cannot run server side;
// the caller tells the client to open its file picker instead.
func shortcutCmd(action keymap.Action) room.CommandFunc {
	switch action {
	case keymap.ActionUndo:
		return undoCmd()
	case keymap.ActionExport:
		return exportCmd()
	default:
		return stateCmd()
	}
}

func mutation(s *editor.Session, st editor.State, err error) room.Result {
	switch {
	case err == nil:
		return room.Result{State: st, Changed: true}
	case errors.Is(err, editor.ErrClearNotConfirmed):
		n := s.Failure(editor.MsgConfirmClear)
		return room.Result{State: st, Notice: &n, Err: err}
	case errors.Is(err, editor.ErrInvalidSelection):
		n := s.Failure(editor.MsgInvalidSelection)
		return room.Result{State: st, Notice: &n, Err: err}
	default:
		return room.Result{State: st, Err: err}
	}
}
