package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/codeclash/battle-backend/internal/room"
	"github.com/codeclash/battle-backend/internal/store"
	"github.com/codeclash/battle-backend/internal/types"
)

type HubMsg interface{ isHubMsg() }

// JoinRoom routes a join through the hub so that room creation and the
// membership change land in the right order. The caller gets the room
// handle back for subsequent direct messages.
type JoinRoom struct {
	RoomID string
	UserID string
	ConnID string
	Out    chan []byte
	Reply  chan *room.Room
}

type GetRoom struct {
	RoomID string
	Reply  chan *room.Room
}

// WatchRooms replaces the connection's entire watch set and replies
// the initial status snapshot per room. Rooms are created as needed,
// with no battle side effects.
type WatchRooms struct {
	ConnID  string
	RoomIDs []string
	Out     chan []byte
	Reply   chan map[string]types.RoomStatusSnapshot
}

type Unwatch struct{ ConnID string }

// retireRoom is posted by a room that became empty. The hub confirms
// emptiness with a Close handshake before dropping it, so a join that
// raced the notification keeps the room alive.
type retireRoom struct {
	roomID string
	r      *room.Room
}

type ShutdownHub struct{}

func (JoinRoom) isHubMsg()    {}
func (GetRoom) isHubMsg()     {}
func (WatchRooms) isHubMsg()  {}
func (Unwatch) isHubMsg()     {}
func (retireRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// Hub is the room directory: the only goroutine that creates, looks
// up, and removes rooms, and the owner of the watcher index.
type Hub struct {
	inbox     chan HubMsg
	rooms     map[string]*room.Room
	watchSets map[string][]string // connID -> watched room ids
	st        store.Store
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewHub(parent context.Context, st store.Store, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:     make(chan HubMsg, 64),
		rooms:     make(map[string]*room.Room),
		watchSets: make(map[string][]string),
		st:        st,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case JoinRoom:
				r := h.ensureRoom(msg.RoomID)
				r.Inbox() <- room.Join{UserID: msg.UserID, ConnID: msg.ConnID, Out: msg.Out}
				msg.Reply <- r

			case GetRoom:
				msg.Reply <- h.rooms[msg.RoomID] // may be nil

			case WatchRooms:
				h.dropWatches(msg.ConnID)
				statuses := make(map[string]types.RoomStatusSnapshot, len(msg.RoomIDs))
				for _, id := range msg.RoomIDs {
					r := h.ensureRoom(id)
					reply := make(chan types.RoomStatusSnapshot, 1)
					r.Inbox() <- room.AddWatcher{ConnID: msg.ConnID, Out: msg.Out, Reply: reply}
					statuses[id] = <-reply
				}
				h.watchSets[msg.ConnID] = msg.RoomIDs
				msg.Reply <- statuses

			case Unwatch:
				h.dropWatches(msg.ConnID)
				delete(h.watchSets, msg.ConnID)

			case retireRoom:
				// stale notification if the map moved on
				if h.rooms[msg.roomID] != msg.r {
					break
				}
				confirm := make(chan bool, 1)
				msg.r.Inbox() <- room.Close{Reply: confirm}
				if <-confirm {
					delete(h.rooms, msg.roomID)
					h.log.Debug("room removed", zap.String("room", msg.roomID))
				}

			case ShutdownHub:
				for _, r := range h.rooms {
					r.Inbox() <- room.Shutdown{}
				}
				clear(h.rooms)
				h.cancel()
			}
		}
	}
}

func (h *Hub) ensureRoom(id string) *room.Room {
	if r := h.rooms[id]; r != nil {
		return r
	}
	r := room.New(h.ctx, id, h.st, h.log, h.notifyEmpty)
	h.rooms[id] = r
	h.log.Debug("room created", zap.String("room", id))
	return r
}

// notifyEmpty is called from room goroutines; it only posts a message,
// the decision happens in the hub loop.
func (h *Hub) notifyEmpty(r *room.Room) {
	select {
	case h.inbox <- retireRoom{roomID: r.ID(), r: r}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) dropWatches(connID string) {
	for _, id := range h.watchSets[connID] {
		if r := h.rooms[id]; r != nil {
			r.Inbox() <- room.RemoveWatcher{ConnID: connID}
		}
	}
}
