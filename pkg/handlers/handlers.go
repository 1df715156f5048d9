package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/tliron/commonlog"

	"poker-hand-editor/pkg/db"
	"poker-hand-editor/pkg/editor"
	"poker-hand-editor/pkg/keymap"
	"poker-hand-editor/pkg/room"
	"poker-hand-editor/pkg/textbuffer"
)

var log = commonlog.GetLogger("poker-editor.handlers")

// DefaultImportLimit caps the size of an imported file.
const DefaultImportLimit = 4 << 20

// Handlers contains all HTTP and WebSocket handlers
type Handlers struct {
	roomManager *room.RoomManager
	keymap      *keymap.Keymap
	importLimit int64
}

// NewHandlers creates a new handlers instance
func NewHandlers(roomManager *room.RoomManager, km *keymap.Keymap) *Handlers {
	if km == nil {
		km = keymap.Default()
	}
	return &Handlers{
		roomManager: roomManager,
		keymap:      km,
		importLimit: DefaultImportLimit,
	}
}

// Response is the JSON body of every session endpoint.
type Response struct {
	SessionID string              `json:"session_id,omitempty"`
	State     *editor.State       `json:"state,omitempty"`
	Notice    *room.NoticeMessage `json:"notice,omitempty"`
	Export    *editor.Export      `json:"export,omitempty"`
	Action    keymap.Action       `json:"action,omitempty"`
	Undone    *bool               `json:"undone,omitempty"`
	Error     string              `json:"error,omitempty"`
}

type selectionRequest struct {
	Selection textbuffer.Selection `json:"selection"`
}

type insertRequest struct {
	Text      string               `json:"text"`
	Selection textbuffer.Selection `json:"selection"`
}

type clearRequest struct {
	Confirmed bool `json:"confirmed"`
}

type editRequest struct {
	Content   string               `json:"content"`
	Selection textbuffer.Selection `json:"selection"`
}

type shortcutRequest struct {
	Chord   keymap.Chord `json:"chord"`
	Focused bool         `json:"focused"`
}

// Routes registers every endpoint on r.
func (h *Handlers) Routes(r *mux.Router) {
	// WebSocket endpoint for live editing
	r.HandleFunc("/ws/{sessionId}", h.HandleWebSocket)

	api := r.PathPrefix("/api/sessions").Subrouter()
	api.HandleFunc("", h.CreateSession).Methods("POST")
	api.HandleFunc("", h.ListSessions).Methods("GET")
	api.HandleFunc("/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/{id}", h.DeleteSession).Methods("DELETE")
	api.HandleFunc("/{id}/insert", h.Insert).Methods("POST")
	api.HandleFunc("/{id}/backspace", h.Backspace).Methods("POST")
	api.HandleFunc("/{id}/clear", h.Clear).Methods("POST")
	api.HandleFunc("/{id}/undo", h.Undo).Methods("POST")
	api.HandleFunc("/{id}/content", h.Edit).Methods("PUT")
	api.HandleFunc("/{id}/import", h.Import).Methods("POST")
	api.HandleFunc("/{id}/export", h.Export).Methods("GET")
	api.HandleFunc("/{id}/shortcut", h.Shortcut).Methods("POST")
	api.HandleFunc("/{id}/clients", h.GetSessionClients).Methods("GET")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warningf("failed to write response: %v", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// statusFor maps a command error to an HTTP status.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, editor.ErrInvalidSelection):
		return http.StatusBadRequest
	case errors.Is(err, editor.ErrClearNotConfirmed):
		return http.StatusConflict
	case errors.Is(err, editor.ErrNothingToExport):
		return http.StatusUnprocessableEntity
	case errors.Is(err, editor.ErrReadFailed):
		return http.StatusBadRequest
	case errors.Is(err, room.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, room.ErrRoomClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toResponse(id string, res room.Result) Response {
	st := res.State
	resp := Response{SessionID: id, State: &st, Export: res.Export}
	if res.Notice != nil {
		n := room.NewNoticeMessage(*res.Notice)
		resp.Notice = &n
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	return resp
}

// run executes cmd in the session named by the {id} path variable and
// writes the result.
func (h *Handlers) run(w http.ResponseWriter, r *http.Request, cmd room.CommandFunc) (room.Result, bool) {
	id := mux.Vars(r)["id"]

	rm, err := h.roomManager.GetRoom(r.Context(), id)
	if err != nil {
		if !errors.Is(err, room.ErrRoomNotFound) {
			log.Errorf("failed to open session %s: %v", id, err)
		}
		writeJSON(w, statusFor(err), Response{SessionID: id, Error: "Session not found"})
		return room.Result{}, false
	}

	res, err := rm.Do(r.Context(), "", cmd)
	if err != nil {
		writeJSON(w, statusFor(err), Response{SessionID: id, Error: err.Error()})
		return room.Result{}, false
	}
	return res, true
}

func (h *Handlers) runAndWrite(w http.ResponseWriter, r *http.Request, cmd room.CommandFunc) {
	res, ok := h.run(w, r, cmd)
	if !ok {
		return
	}
	writeJSON(w, statusFor(res.Err), toResponse(mux.Vars(r)["id"], res))
}

// CreateSession starts a new editor session with a fresh ID
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.New().String()

	rm, err := h.roomManager.GetOrCreateRoom(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	res, err := rm.Do(r.Context(), "", stateCmd())
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(id, res))
}

// ListSessions returns the persisted sessions
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	records, err := h.roomManager.Store.List(r.Context(), h.roomManager.StorageKey())
	if err != nil {
		log.Errorf("failed to list sessions: %v", err)
		http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*db.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetSession returns the current state of a session
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	h.runAndWrite(w, r, stateCmd())
}

// DeleteSession closes a session and drops its persisted slot. A session
// that is open but was never saved still counts as found.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	wasOpen := h.roomManager.Remove(id)

	err := h.roomManager.Store.Delete(r.Context(), h.roomManager.Slot(id))
	switch {
	case errors.Is(err, db.ErrSlotNotFound) && wasOpen:
	case errors.Is(err, db.ErrSlotNotFound):
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	case err != nil:
		log.Errorf("failed to delete session %s: %v", id, err)
		http.Error(w, "Failed to delete session", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Insert handles a keyboard button press
func (h *Handlers) Insert(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	h.runAndWrite(w, r, insertCmd(req.Text, req.Selection))
}

// Backspace handles the backspace button
func (h *Handlers) Backspace(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	h.runAndWrite(w, r, backspaceCmd(req.Selection))
}

// Clear empties the buffer. The client must have asked the user first and
// send confirmed=true; otherwise 409 comes back with the prompt text.
func (h *Handlers) Clear(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	h.runAndWrite(w, r, clearCmd(req.Confirmed))
}

// Undo restores the previous snapshot
func (h *Handlers) Undo(w http.ResponseWriter, r *http.Request) {
	res, ok := h.run(w, r, undoCmd())
	if !ok {
		return
	}
	resp := toResponse(mux.Vars(r)["id"], res)
	undone := res.Changed
	resp.Undone = &undone
	writeJSON(w, http.StatusOK, resp)
}

// Edit takes the edit surface's value after free typing
func (h *Handlers) Edit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	h.runAndWrite(w, r, editCmd(req.Content, req.Selection))
}

// Export downloads the buffer as a dated text file
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	res, ok := h.run(w, r, exportCmd())
	if !ok {
		return
	}
	if res.Err != nil {
		writeJSON(w, statusFor(res.Err), toResponse(mux.Vars(r)["id"], res))
		return
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{
		"filename": res.Export.Filename,
	})
	if disposition == "" {
		err := fmt.Errorf("%w: bad filename %q", editor.ErrExportFailed, res.Export.Filename)
		log.Errorf("export failed: %v", err)
		res, ok = h.run(w, r, failureNoticeCmd(editor.MsgExportFailed, err))
		if ok {
			writeJSON(w, statusFor(res.Err), toResponse(mux.Vars(r)["id"], res))
		}
		return
	}

	w.Header().Set("Content-Type", editor.ExportContentType)
	w.Header().Set("Content-Disposition", disposition)
	if res.Notice != nil {
		w.Header().Set("X-Notice", res.Notice.Text)
	}
	if _, err := io.WriteString(w, res.Export.Content); err != nil {
		log.Errorf("export failed: %v", err)
	}
}

// Import replaces the buffer with an uploaded file. Multipart uploads use the
// "file" field; any other body is taken as the file itself.
func (h *Handlers) Import(w http.ResponseWriter, r *http.Request) {
	content, err := h.readImport(w, r)
	if err != nil {
		log.Warningf("import read failed: %v", err)
		h.runAndWrite(w, r, failureNoticeCmd(editor.MsgReadFailed, err))
		return
	}
	h.runAndWrite(w, r, importCmd(content))
}

func (h *Handlers) readImport(w http.ResponseWriter, r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		return editor.ReadImport(r.Body, h.importLimit)
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.importLimit+1<<20)
	file, _, err := r.FormFile("file")
	if err != nil {
		return "", fmt.Errorf("%w: %v", editor.ErrReadFailed, err)
	}
	defer file.Close()
	return editor.ReadImport(file, h.importLimit)
}

// Shortcut runs the action bound to a key chord
func (h *Handlers) Shortcut(w http.ResponseWriter, r *http.Request) {
	var req shortcutRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	action, ok := h.keymap.Resolve(req.Chord, req.Focused)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	res, ok := h.run(w, r, shortcutCmd(action))
	if !ok {
		return
	}
	resp := toResponse(mux.Vars(r)["id"], res)
	resp.Action = action
	if action == keymap.ActionUndo {
		undone := res.Changed
		resp.Undone = &undone
	}
	writeJSON(w, statusFor(res.Err), resp)
}

// GetSessionClients returns how many live clients a session has
func (h *Handlers) GetSessionClients(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rm, err := h.roomManager.GetRoom(r.Context(), id)
	if err != nil {
		http.Error(w, "Session not found", statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"clients":    rm.ClientCount(),
	})
}
