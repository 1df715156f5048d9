package editor

import "time"

// NoticeLevel is the flavour of a transient notification.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// DefaultNoticeDuration is how long the UI shows a notice before dismissing it.
const DefaultNoticeDuration = 3 * time.Second

// User-visible texts.
const (
	MsgNothingToExport  = "No content to export"
	MsgExported         = "Hand history exported successfully!"
	MsgExportFailed     = "Export failed"
	MsgImported         = "Hand history imported successfully!"
	MsgImportFailed     = "Import failed"
	MsgReadFailed       = "Failed to read file"
	MsgConfirmClear     = "Are you sure you want to clear all content?"
	MsgInvalidSelection = "Invalid selection"
)

// Notice is a transient, auto-dismissing message for the user.
type Notice struct {
	Level    NoticeLevel   `json:"level"`
	Text     string        `json:"text"`
	Duration time.Duration `json:"-"`
}

// DurationMillis is the display time in milliseconds, for JSON clients.
func (n Notice) DurationMillis() int64 {
	return n.Duration.Milliseconds()
}

// Success builds a success notice with the session's display duration.
func (s *Session) Success(text string) Notice {
	return Notice{Level: NoticeSuccess, Text: text, Duration: s.noticeDuration}
}

// Failure builds an error notice with the session's display duration.
func (s *Session) Failure(text string) Notice {
	return Notice{Level: NoticeError, Text: text, Duration: s.noticeDuration}
}
