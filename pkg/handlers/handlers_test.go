package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"poker-hand-editor/pkg/db"
	"poker-hand-editor/pkg/editor"
	"poker-hand-editor/pkg/keymap"
	"poker-hand-editor/pkg/room"
)

type testServer struct {
	*httptest.Server
	store db.ISlotStore
	rm    *room.RoomManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := db.NewMemorySlotStore()
	rm := room.NewRoomManager(store, "pokerHandHistory", editor.Options{
		MaxHistorySize: 50,
		Now:            func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) },
	})
	h := NewHandlers(rm, keymap.Default())

	r := mux.NewRouter()
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		rm.Close()
	})
	return &testServer{Server: srv, store: store, rm: rm}
}

// open starts a live session the way POST /api/sessions does.
func (ts *testServer) open(t *testing.T, id string) {
	t.Helper()
	_, err := ts.rm.GetOrCreateRoom(t.Context(), id)
	require.NoError(t, err)
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*http.Response, Response) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var out Response
	if strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	}
	return res, out
}

func TestCreateSession(t *testing.T) {
	ts := newTestServer(t)

	res, out := ts.do(t, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.NotEmpty(t, out.SessionID)
	require.NotNil(t, out.State)
	require.Equal(t, "", out.State.Content)
	require.Equal(t, 1, out.State.HistoryLen)
	require.False(t, out.State.CanUndo)
}

func TestInsertBackspaceUndo(t *testing.T) {
	ts := newTestServer(t)
	ts.open(t, "t1")

	res, out := ts.do(t, http.MethodPost, "/api/sessions/t1/insert", `{"text":"A","selection":{"start":0,"end":0}}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "A", out.State.Content)

	_, out = ts.do(t, http.MethodPost, "/api/sessions/t1/insert", `{"text":"B","selection":{"start":1,"end":1}}`)
	require.Equal(t, "AB", out.State.Content)
	require.Equal(t, 3, out.State.HistoryLen)

	_, out = ts.do(t, http.MethodPost, "/api/sessions/t1/backspace", `{"selection":{"start":2,"end":2}}`)
	require.Equal(t, "A", out.State.Content)

	res, out = ts.do(t, http.MethodPost, "/api/sessions/t1/undo", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotNil(t, out.Undone)
	require.True(t, *out.Undone)
	require.Equal(t, "AB", out.State.Content)

	rec, err := ts.store.Load(t.Context(), ts.rm.Slot("t1"))
	require.NoError(t, err)
	require.Equal(t, "AB", rec.Content)
}

func TestUndo_AtOldestSnapshot(t *testing.T) {
	ts := newTestServer(t)
	ts.open(t, "t1")

	res, out := ts.do(t, http.MethodPost, "/api/sessions/t1/undo", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotNil(t, out.Undone)
	require.False(t, *out.Undone)
	require.Equal(t, "", out.State.Content)
}

func TestInsert_InvalidSelection(t *testing.T) {
	ts := newTestServer(t)
	ts.open(t, "t1")

	res, out := ts.do(t, http.MethodPost, "/api/sessions/t1/insert", `{"text":"A","selection":{"start":3,"end":5}}`)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.NotNil(t, out.Notice)
	require.Equal(t, editor.MsgInvalidSelection, out.Notice.Text)
	require.Equal(t, "", out.State.Content)
}

func TestInsert_RejectsUnknownFields(t *testing.T) {
	ts := newTestServer(t)
	ts.open(t, "t1")

	res, _ := ts.do(t, http.MethodPost, "/api/sessions/t1/insert", `{"txt":"A"}`)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestClear_NeedsConfirmation(t *testing.T) {
	ts := newTestServer(t)
	ts.open(t, "t1")
	ts.do(t, http.MethodPost, "/api/sessions/t1/insert", `{"text":"Seat 1","selection":{"start":0,"end":0}}`)

	res, out := ts.do(t, http.MethodPost, "/api/sessions/t1/clear", `{"confirmed":false}`)
	require.Equal(t, http.StatusConflict, res.StatusCode)
	require.Equal(t, editor.MsgConfirmClear, out.Notice.Text)
	require.Equal(t, "Seat 1", out.State.Content)

	res, out = ts.do(t, http.MethodPost, "/api/sessions/t1/clear", `{"confirmed":true}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "", out.State.Content)
	require.True(t, out.State.CanUndo)
}

func TestEdit_ReplacesContent(t *testing.T) {
	ts := newTestServer(t)
	ts.open(t, "t1")

	res, out := ts.do(t, http.MethodPut, "/api/sessions/t1/content", `{"content":"Dealer: Seat 3","selection":{"start":14,"end":14}}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "Dealer: Seat 3", out.State.Content)
	require.Equal(t, 14, out.State.Selection.Start)
}

func TestExport_EmptyIsRefused(t *testing.T) {
	ts := newTestServer(t)
	ts.open(t, "t1")
	ts.do(t, http.MethodPut, "/api/sessions/t1/content", `{"content":"  \n\t","selection":{"start":0,"end":0}}`)

	res, out := ts.do(t, http.MethodGet, "/api/sessions/t1/export", "")
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	require.NotNil(t, out.Notice)
	require.Equal(t, editor.MsgNothingToExport, out.Notice.Text)
	require.Equal(t, string(editor.NoticeError), string(out.Notice.Level))
}

func TestExport_DownloadsDatedFile(t *testing.T) {
	ts := newTestServer(t)
	ts.open(t, "t1")
	ts.do(t, http.MethodPut, "/api/sessions/t1/content", `{"content":"Hand #1\nSeat 1: Hero","selection":{"start":0,"end":0}}`)

	res, err := http.Get(ts.URL + "/api/sessions/t1/export")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, editor.ExportContentType, res.Header.Get("Content-Type"))
	require.Equal(t, `attachment; filename=poker-hand-history-2024-03-09.txt`, res.Header.Get("Content-Disposition"))
	require.Equal(t, editor.MsgExported, res.Header.Get("X-Notice"))

	var body bytes.Buffer
	_, err = body.ReadFrom(res.Body)
	require.NoError(t, err)
	require.Equal(t, "Hand #1\nSeat 1: Hero", body.String())
}

func TestImport_RawBody(t *testing.T) {
	ts := newTestServer(t)
	ts.open(t, "t1")
	ts.do(t, http.MethodPost, "/api/sessions/t1/insert", `{"text":"old","selection":{"start":0,"end":0}}`)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/sessions/t1/import", strings.NewReader("Hand #2\nflop: Ah Kd 7c"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var out Response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "Hand #2\nflop: Ah Kd 7c", out.State.Content)
	require.Equal(t, editor.MsgImported, out.Notice.Text)
	require.True(t, out.State.CanUndo)
}

func TestImport_Multipart(t *testing.T) {
	ts := newTestServer(t)
	ts.open(t, "t1")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "hands.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("Seat 2: Villain"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	res, err := http.Post(ts.URL+"/api/sessions/t1/import", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer res.Body.Close()

	var out Response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "Seat 2: Villain", out.State.Content)
}

func TestImport_MissingFileField(t *testing.T) {
	ts := newTestServer(t)
	ts.open(t, "t1")
	ts.do(t, http.MethodPost, "/api/sessions/t1/insert", `{"text":"keep","selection":{"start":0,"end":0}}`)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())

	res, err := http.Post(ts.URL+"/api/sessions/t1/import", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer res.Body.Close()

	var out Response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Equal(t, editor.MsgReadFailed, out.Notice.Text)
	require.Equal(t, "keep", out.State.Content)
}

func TestShortcut(t *testing.T) {
	ts := newTestServer(t)
	ts.open(t, "t1")
	ts.do(t, http.MethodPost, "/api/sessions/t1/insert", `{"text":"A","selection":{"start":0,"end":0}}`)

	res, _ := ts.do(t, http.MethodPost, "/api/sessions/t1/shortcut", `{"chord":{"ctrl":true,"key":"z"},"focused":false}`)
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	res, out := ts.do(t, http.MethodPost, "/api/sessions/t1/shortcut", `{"chord":{"ctrl":true,"key":"z"},"focused":true}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, keymap.ActionUndo, out.Action)
	require.True(t, *out.Undone)
	require.Equal(t, "", out.State.Content)

	res, out = ts.do(t, http.MethodPost, "/api/sessions/t1/shortcut", `{"chord":{"ctrl":true,"key":"o"},"focused":true}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, keymap.ActionImport, out.Action)

	res, out = ts.do(t, http.MethodPost, "/api/sessions/t1/shortcut", `{"chord":{"ctrl":true,"key":"s"},"focused":true}`)
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	require.Equal(t, keymap.ActionExport, out.Action)
}

func TestListAndDeleteSessions(t *testing.T) {
	ts := newTestServer(t)
	ts.open(t, "t1")
	ts.do(t, http.MethodPost, "/api/sessions/t1/insert", `{"text":"A","selection":{"start":0,"end":0}}`)

	res, err := http.Get(ts.URL + "/api/sessions")
	require.NoError(t, err)
	var records []*db.Record
	require.NoError(t, json.NewDecoder(res.Body).Decode(&records))
	res.Body.Close()
	require.Len(t, records, 1)
	require.Equal(t, "t1", records[0].Namespace)

	res, _ = ts.do(t, http.MethodDelete, "/api/sessions/t1", "")
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	res, _ = ts.do(t, http.MethodDelete, "/api/sessions/t1", "")
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	require.Empty(t, ts.rm.RoomIDs())
}

func readWS(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(v))
}

func TestWebSocket_EditingAndBroadcast(t *testing.T) {
	ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/t1"

	alice, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer alice.Close()
	bob, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer bob.Close()

	var st room.StateMessage
	readWS(t, alice, &st)
	require.Equal(t, room.TypeState, st.Type)
	readWS(t, bob, &st)
	require.Equal(t, room.TypeState, st.Type)

	require.NoError(t, alice.WriteJSON(map[string]any{
		"type":      "insert",
		"text":      "Ks",
		"selection": map[string]int{"start": 0, "end": 0},
	}))

	readWS(t, alice, &st)
	require.Equal(t, "Ks", st.Content)
	readWS(t, bob, &st)
	require.Equal(t, "Ks", st.Content)

	// Export goes only to the sender: state, notice, then the file.
	require.NoError(t, alice.WriteJSON(map[string]any{"type": "export"}))
	readWS(t, alice, &st)
	var notice room.NoticeMessage
	readWS(t, alice, &notice)
	require.Equal(t, room.TypeNotice, notice.Type)
	require.Equal(t, editor.MsgExported, notice.Text)
	require.Equal(t, int64(editor.DefaultNoticeDuration/time.Millisecond), notice.DurationMS)
	var exp room.ExportMessage
	readWS(t, alice, &exp)
	require.Equal(t, room.TypeExport, exp.Type)
	require.Equal(t, "poker-hand-history-2024-03-09.txt", exp.Filename)
	require.Equal(t, "Ks", exp.Content)

	// A toolbar undo reaches everyone.
	require.NoError(t, bob.WriteJSON(map[string]any{"type": "action", "action": "undo"}))
	readWS(t, bob, &st)
	require.Equal(t, "", st.Content)
	readWS(t, alice, &st)
	require.Equal(t, "", st.Content)
}

func TestWebSocket_ImportShortcutAsksForFile(t *testing.T) {
	ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/t1"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var st room.StateMessage
	readWS(t, conn, &st)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":    "shortcut",
		"chord":   map[string]any{"ctrl": true, "key": "o"},
		"focused": true,
	}))
	readWS(t, conn, &st)
	var action room.ActionMessage
	readWS(t, conn, &action)
	require.Equal(t, room.TypeAction, action.Type)
	require.Equal(t, string(keymap.ActionImport), action.Action)
}

func TestUnknownSession_NotFound(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 5; i++ {
		res, out := ts.do(t, http.MethodGet, "/api/sessions/nope", "")
		require.Equal(t, http.StatusNotFound, res.StatusCode)
		require.Equal(t, "Session not found", out.Error)
	}
	res, _ := ts.do(t, http.MethodPost, "/api/sessions/nope/insert", `{"text":"A","selection":{"start":0,"end":0}}`)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = ts.do(t, http.MethodGet, "/api/sessions/nope/clients", "")
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	require.Empty(t, ts.rm.RoomIDs())
}

func TestSavedSession_ReopensAfterRestart(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.store.Save(t.Context(), ts.rm.Slot("old"), "Board: [Qs Jh 2c]")
	require.NoError(t, err)

	res, out := ts.do(t, http.MethodGet, "/api/sessions/old", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "Board: [Qs Jh 2c]", out.State.Content)
}

func TestDeleteSession_CreatedButNeverEdited(t *testing.T) {
	ts := newTestServer(t)

	res, out := ts.do(t, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res, _ = ts.do(t, http.MethodDelete, "/api/sessions/"+out.SessionID, "")
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	res, _ = ts.do(t, http.MethodGet, "/api/sessions/"+out.SessionID, "")
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestGuarded_ReportsFailureNotice(t *testing.T) {
	rm := room.NewRoomManager(db.NewMemorySlotStore(), "pokerHandHistory", editor.Options{})
	t.Cleanup(rm.Close)
	r, err := rm.GetOrCreateRoom(t.Context(), "t1")
	require.NoError(t, err)

	broken := guarded(editor.MsgExportFailed, editor.ErrExportFailed, func(context.Context, *editor.Session) room.Result {
		panic("no disk")
	})
	res, err := r.Do(t.Context(), "", broken)
	require.NoError(t, err)
	require.ErrorIs(t, res.Err, editor.ErrExportFailed)
	require.Equal(t, editor.MsgExportFailed, res.Notice.Text)
	require.Equal(t, editor.NoticeError, res.Notice.Level)

	// The room survives the failure.
	res, err = r.Do(t.Context(), "", importCmd("Hero wins"))
	require.NoError(t, err)
	require.NoError(t, res.Err)
	require.Equal(t, "Hero wins", res.State.Content)
	require.Equal(t, editor.MsgImported, res.Notice.Text)
}
