package room

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/tliron/commonlog"

	"poker-hand-editor/pkg/db"
	"poker-hand-editor/pkg/editor"
)

var log = commonlog.GetLogger("poker-editor.room")

var (
	// ErrRoomClosed is returned by Do once the room has been shut down.
	ErrRoomClosed = errors.New("room closed")
	// ErrRoomNotFound is returned by GetRoom for sessions that were never
	// opened or saved.
	ErrRoomNotFound = errors.New("session not found")
)

// Client represents a connected WebSocket client in a room
type Client struct {
	ID   string
	Conn *websocket.Conn
	Room *Room
	Send chan []byte
}

// Result is what a command reports back to its caller.
type Result struct {
	State editor.State
	// Changed broadcasts State to every other client of the room.
	Changed bool
	Notice  *editor.Notice
	Export  *editor.Export
	Err     error
	// Reply holds messages delivered only to the sending client.
	Reply []any
}

// CommandFunc runs against the session inside the room loop.
type CommandFunc func(ctx context.Context, s *editor.Session) Result

type command struct {
	ctx      context.Context
	senderID string
	fn       CommandFunc
	reply    chan Result
}

// Room owns one editor session. Every command on the session runs inside
// the room's goroutine, one at a time, so the session needs no locking.
type Room struct {
	ID         string
	Clients    map[string]*Client
	Register   chan *Client
	Unregister chan *Client

	session  *editor.Session
	commands chan command
	done     chan struct{}
	stopOnce sync.Once
	mutex    sync.RWMutex
	// onStop runs once the loop has exited, for whatever reason.
	onStop   func(*Room)
}

// RoomManager manages all rooms
type RoomManager struct {
	rooms map[string]*Room
	mutex sync.RWMutex
	Store db.ISlotStore

	storageKey string
	opts       editor.Options
}

// NewRoomManager creates a new room manager. Each room persists into the slot
// (room ID, storageKey).
func NewRoomManager(store db.ISlotStore, storageKey string, opts editor.Options) *RoomManager {
	return &RoomManager{
		rooms:      make(map[string]*Room),
		Store:      store,
		storageKey: storageKey,
		opts:       opts,
	}
}

// Slot returns the slot a room persists into.
func (rm *RoomManager) Slot(roomID string) db.Slot {
	return db.Slot{Namespace: roomID, Key: rm.storageKey}
}

// StorageKey returns the fixed application key.
func (rm *RoomManager) StorageKey() string {
	return rm.storageKey
}

// GetOrCreateRoom gets an existing room or creates a new one, seeding its
// session from storage. The slot is read outside the manager lock.
func (rm *RoomManager) GetOrCreateRoom(ctx context.Context, roomID string) (*Room, error) {
	if roomID == "" {
		return nil, errors.New("room id is required")
	}
	if room, ok := rm.live(roomID); ok {
		return room, nil
	}

	session := editor.NewSession(ctx, rm.Store, rm.Slot(roomID), rm.opts)

	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	// Someone else may have opened it while the slot was loading.
	if room, ok := rm.rooms[roomID]; ok && !room.closed() {
		return room, nil
	}

	room := &Room{
		ID:         roomID,
		Clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		session:    session,
		commands:   make(chan command),
		done:       make(chan struct{}),
		onStop:     rm.forget,
	}
	rm.rooms[roomID] = room

	go room.run()

	log.Infof("room %s opened", roomID)
	return room, nil
}

// GetRoom returns the room of a session that is either open or persisted.
// It returns ErrRoomNotFound for anything else and never creates a slot.
func (rm *RoomManager) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	if roomID == "" {
		return nil, ErrRoomNotFound
	}
	if room, ok := rm.live(roomID); ok {
		return room, nil
	}
	if rm.Store == nil {
		return nil, ErrRoomNotFound
	}

	_, err := rm.Store.Load(ctx, rm.Slot(roomID))
	switch {
	case errors.Is(err, db.ErrSlotNotFound):
		return nil, ErrRoomNotFound
	case err != nil:
		return nil, fmt.Errorf("looking up session %s: %w", roomID, err)
	}
	return rm.GetOrCreateRoom(ctx, roomID)
}

func (rm *RoomManager) live(roomID string) (*Room, bool) {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()

	room, ok := rm.rooms[roomID]
	if !ok || room.closed() {
		return nil, false
	}
	return room, true
}

// forget drops a stopped room, unless it has already been replaced.
func (rm *RoomManager) forget(r *Room) {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	if rm.rooms[r.ID] == r {
		delete(rm.rooms, r.ID)
	}
}

// Remove stops a room and forgets it. It reports whether a room was open.
func (rm *RoomManager) Remove(roomID string) bool {
	rm.mutex.Lock()
	room, ok := rm.rooms[roomID]
	delete(rm.rooms, roomID)
	rm.mutex.Unlock()

	if ok {
		room.Stop()
	}
	return ok
}

// RoomIDs returns the IDs of the open rooms.
func (rm *RoomManager) RoomIDs() []string {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()

	ids := make([]string, 0, len(rm.rooms))
	for id := range rm.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Close stops every room.
func (rm *RoomManager) Close() {
	rm.mutex.Lock()
	rooms := rm.rooms
	rm.rooms = make(map[string]*Room)
	rm.mutex.Unlock()

	for _, room := range rooms {
		room.Stop()
	}
}

// Stop ends the room loop and disconnects its clients.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

func (r *Room) closed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Join registers a client; it receives the current state right away.
func (r *Room) Join(c *Client) error {
	if r.closed() {
		return ErrRoomClosed
	}
	select {
	case r.Register <- c:
		return nil
	case <-r.done:
		return ErrRoomClosed
	}
}

// Leave unregisters a client and closes its Send channel. Leaving twice is
// harmless.
func (r *Room) Leave(c *Client) {
	select {
	case r.Unregister <- c:
	case <-r.done:
	}
}

// Do runs fn against the room's session and waits for its result.
// senderID, if set, is excluded from the state broadcast.
func (r *Room) Do(ctx context.Context, senderID string, fn CommandFunc) (Result, error) {
	cmd := command{
		ctx:      ctx,
		senderID: senderID,
		fn:       fn,
		reply:    make(chan Result, 1),
	}

	if r.closed() {
		return Result{}, ErrRoomClosed
	}
	select {
	case r.commands <- cmd:
	case <-r.done:
		return Result{}, ErrRoomClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	// Once accepted the command always completes, so wait for it even if ctx
	// ends: the session may already have changed.
	select {
	case res := <-cmd.reply:
		return res, nil
	case <-r.done:
		return Result{}, ErrRoomClosed
	}
}

// run handles room operations
func (r *Room) run() {
	defer func() {
		if rec := recover(); rec != nil {
			log.Criticalf("panic in room %s: %v\n%s", r.ID, rec, debug.Stack())
		}
		r.Stop()
		r.disconnectAll()
		if r.onStop != nil {
			r.onStop(r)
		}
	}()

	for {
		if r.closed() {
			log.Infof("room %s closed", r.ID)
			return
		}

		select {
		case client := <-r.Register:
			r.mutex.Lock()
			r.Clients[client.ID] = client
			r.mutex.Unlock()
			r.sendTo(client, encode(NewStateMessage(r.session.State())))
			log.Debugf("client %s joined room %s", client.ID, r.ID)

		case client := <-r.Unregister:
			r.mutex.Lock()
			if _, ok := r.Clients[client.ID]; ok {
				delete(r.Clients, client.ID)
				close(client.Send)
			}
			r.mutex.Unlock()
			log.Debugf("client %s left room %s", client.ID, r.ID)

		case cmd := <-r.commands:
			res := cmd.fn(cmd.ctx, r.session)
			if res.Changed {
				r.broadcast(encode(NewStateMessage(res.State)), cmd.senderID)
			}
			if sender, ok := r.Clients[cmd.senderID]; ok {
				for _, m := range res.Reply {
					r.sendTo(sender, encode(m))
				}
			}
			cmd.reply <- res

		case <-r.done:
			log.Infof("room %s closed", r.ID)
			return
		}
	}
}

func (r *Room) disconnectAll() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for id, client := range r.Clients {
		close(client.Send)
		delete(r.Clients, id)
	}
}

// sendTo queues data for one client, dropping it if the client is slow.
func (r *Room) sendTo(c *Client, data []byte) {
	if data == nil {
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warningf("dropping message for slow client %s", c.ID)
	}
}

// broadcast sends data to all clients except excludeClientID. Clients whose
// queue is full are disconnected.
func (r *Room) broadcast(data []byte, excludeClientID string) {
	if data == nil {
		return
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, client := range r.Clients {
		if client.ID == excludeClientID {
			continue
		}
		select {
		case client.Send <- data:
		default:
			close(client.Send)
			delete(r.Clients, client.ID)
		}
	}
}

// ClientCount returns the number of connected clients.
func (r *Room) ClientCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.Clients)
}
