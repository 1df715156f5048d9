package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"poker-hand-editor/pkg/editor"
	"poker-hand-editor/pkg/keymap"
	"poker-hand-editor/pkg/room"
	"poker-hand-editor/pkg/textbuffer"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// inbound is a trigger sent by the browser over the socket.
type inbound struct {
	Type      string                `json:"type"`
	Text      string                `json:"text"`
	Content   string                `json:"content"`
	Selection *textbuffer.Selection `json:"selection"`
	Confirmed bool                  `json:"confirmed"`
	Chord     keymap.Chord          `json:"chord"`
	Focused   bool                  `json:"focused"`
	Action    string                `json:"action"`
}

func (m inbound) selection() textbuffer.Selection {
	if m.Selection == nil {
		return textbuffer.Caret(0)
	}
	return *m.Selection
}

// HandleWebSocket attaches a browser to a session for live editing
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	// Get or create room before upgrading so failures are plain HTTP errors.
	roomInstance, err := h.roomManager.GetOrCreateRoom(r.Context(), sessionID)
	if err != nil {
		log.Errorf("error getting session %s: %v", sessionID, err)
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warningf("WebSocket upgrade error: %v", err)
		return
	}

	client := &room.Client{
		ID:   uuid.New().String(),
		Conn: conn,
		Room: roomInstance,
		Send: make(chan []byte, 256),
	}

	if err := roomInstance.Join(client); err != nil {
		log.Warningf("session %s closed before client joined", sessionID)
		conn.Close()
		return
	}

	// Start goroutines for reading and writing
	go h.writePump(client)
	go h.readPump(client)
}

// readPump handles reading messages from the WebSocket
func (h *Handlers) readPump(c *room.Client) {
	defer func() {
		if r := recover(); r != nil {
			log.Criticalf("panic in readPump for %s: %v\n%s", c.ID, r, debug.Stack())
		}
		c.Room.Leave(c)
		c.Conn.Close()
		log.Debugf("readPump exiting for %s", c.ID)
	}()

	c.Conn.SetReadLimit(h.importLimit + 64<<10)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warningf("WebSocket unexpected close for %s: %v", c.ID, err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Warningf("error parsing message from %s: %v", c.ID, err)
			continue
		}

		cmd, ok := h.commandFor(msg)
		if !ok {
			log.Debugf("ignoring message %q from %s", msg.Type, c.ID)
			continue
		}

		if _, err := c.Room.Do(context.Background(), c.ID, cmd); err != nil {
			log.Warningf("command %q for %s failed: %v", msg.Type, c.ID, err)
			return
		}
	}
}

// withReply makes the room answer the sender with the new state and any
// notice, export or client-side action the command produced.
func withReply(cmd room.CommandFunc, action keymap.Action) room.CommandFunc {
	return func(ctx context.Context, s *editor.Session) room.Result {
		res := cmd(ctx, s)
		res.Reply = append(res.Reply, room.NewStateMessage(res.State))
		if res.Notice != nil {
			res.Reply = append(res.Reply, room.NewNoticeMessage(*res.Notice))
		}
		if res.Export != nil {
			res.Reply = append(res.Reply, room.NewExportMessage(*res.Export))
		}
		if action == keymap.ActionImport {
			res.Reply = append(res.Reply, room.ActionMessage{Type: room.TypeAction, Action: string(action)})
		}
		return res
	}
}

func pongCmd() room.CommandFunc {
	return func(context.Context, *editor.Session) room.Result {
		return room.Result{Reply: []any{room.ActionMessage{Type: room.TypePong}}}
	}
}

// commandFor maps an inbound message to the command it triggers.
func (h *Handlers) commandFor(msg inbound) (room.CommandFunc, bool) {
	switch msg.Type {
	case "ping":
		return pongCmd(), true
	case "state":
		return withReply(stateCmd(), ""), true
	case "insert":
		return withReply(insertCmd(msg.Text, msg.selection()), ""), true
	case "backspace":
		return withReply(backspaceCmd(msg.selection()), ""), true
	case "clear":
		return withReply(clearCmd(msg.Confirmed), ""), true
	case "undo":
		return withReply(undoCmd(), ""), true
	case "edit":
		sel := textbuffer.Caret(textbuffer.Len(msg.Content))
		if msg.Selection != nil {
			sel = *msg.Selection
		}
		return withReply(editCmd(msg.Content, sel), ""), true
	case "import":
		return withReply(importCmd(msg.Content), ""), true
	case "export":
		return withReply(exportCmd(), ""), true
	case "shortcut":
		action, ok := h.keymap.Resolve(msg.Chord, msg.Focused)
		if !ok {
			return nil, false
		}
		return withReply(shortcutCmd(action), action), true
	case "action":
		// Toolbar buttons name their action directly.
		action, err := keymap.ParseAction(msg.Action)
		if err != nil {
			log.Warningf("%v", err)
			return nil, false
		}
		return withReply(shortcutCmd(action), action), true
	default:
		return nil, false
	}
}

// writePump handles writing messages to the WebSocket
func (h *Handlers) writePump(c *room.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Room.Leave(c)
		c.Conn.Close()
		log.Debugf("writePump exiting for %s", c.ID)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// channel closed: send close and return
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warningf("WebSocket write error for %s: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warningf("ping error for %s: %v", c.ID, err)
				return
			}
		}
	}
}
