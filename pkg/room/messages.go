package room

import (
	"encoding/json"

	"poker-hand-editor/pkg/editor"
)

// Outgoing message types.
const (
	TypeState  = "state"
	TypeNotice = "notice"
	TypeExport = "export"
	TypeAction = "action"
	TypePong   = "pong"
)

// StateMessage carries the session state to a client.
type StateMessage struct {
	Type string `json:"type"`
	editor.State
}

// NoticeMessage is a transient notification the client shows for DurationMS.
type NoticeMessage struct {
	Type       string             `json:"type"`
	Level      editor.NoticeLevel `json:"level"`
	Text       string             `json:"text"`
	DurationMS int64              `json:"duration_ms"`
}

// ExportMessage hands the client a file to download.
type ExportMessage struct {
	Type string `json:"type"`
	editor.Export
}

// ActionMessage asks the client to perform a UI-side action, e.g. open its
// file picker for an import shortcut.
type ActionMessage struct {
	Type   string `json:"type"`
	Action string `json:"action,omitempty"`
}

func NewStateMessage(st editor.State) StateMessage {
	return StateMessage{Type: TypeState, State: st}
}

func NewNoticeMessage(n editor.Notice) NoticeMessage {
	return NoticeMessage{
		Type:       TypeNotice,
		Level:      n.Level,
		Text:       n.Text,
		DurationMS: n.DurationMillis(),
	}
}

func NewExportMessage(e editor.Export) ExportMessage {
	return ExportMessage{Type: TypeExport, Export: e}
}

func encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Errorf("failed to encode message: %v", err)
		return nil
	}
	return data
}
