package hub

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/codeclash/battle-backend/internal/room"
	"github.com/codeclash/battle-backend/internal/types"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, nil, zap.NewNop())
}

func getRoom(t *testing.T, h *Hub, id string) *room.Room {
	t.Helper()
	reply := make(chan *room.Room, 1)
	h.Inbox() <- GetRoom{RoomID: id, Reply: reply}
	select {
	case r := <-reply:
		return r
	case <-time.After(time.Second):
		t.Fatalf("timed out on GetRoom")
		return nil
	}
}

func TestHub_JoinThenGet_SamePointer(t *testing.T) {
	h := newTestHub(t)

	out := make(chan []byte, 8)
	reply := make(chan *room.Room, 1)
	h.Inbox() <- JoinRoom{RoomID: "r1", UserID: "alice", ConnID: "c1", Out: out, Reply: reply}
	r1 := <-reply

	if r2 := getRoom(t, h, "r1"); r1 == nil || r2 == nil || r1 != r2 {
		t.Fatalf("expected same room pointer")
	}
}

func TestHub_GetUnknownRoomIsNil(t *testing.T) {
	h := newTestHub(t)
	if r := getRoom(t, h, "nope"); r != nil {
		t.Fatalf("unknown room should be nil, got %v", r.ID())
	}
}

func TestHub_WatchBeforeRoomsExist(t *testing.T) {
	h := newTestHub(t)

	out := make(chan []byte, 8)
	reply := make(chan map[string]types.RoomStatusSnapshot, 1)
	h.Inbox() <- WatchRooms{ConnID: "w1", RoomIDs: []string{"r1", "r2"}, Out: out, Reply: reply}

	statuses := <-reply
	if len(statuses) != 2 {
		t.Fatalf("want 2 statuses, got %d", len(statuses))
	}
	for id, snap := range statuses {
		if !snap.CanJoin || snap.ConnectedPlayerCount != 0 || snap.Status != "" {
			t.Fatalf("room %s: fresh watched room should be joinable and empty: %+v", id, snap)
		}
	}

	// watching must not create battles
	if r := getRoom(t, h, "r1"); r == nil {
		t.Fatalf("watch should have created the room entry")
	}
}

func TestHub_WatchReplacesPriorSet(t *testing.T) {
	h := newTestHub(t)

	out := make(chan []byte, 8)
	reply := make(chan map[string]types.RoomStatusSnapshot, 1)
	h.Inbox() <- WatchRooms{ConnID: "w1", RoomIDs: []string{"r1"}, Out: out, Reply: reply}
	<-reply

	// keep r1 alive independently of the watcher
	memberOut := make(chan []byte, 8)
	joinReply := make(chan *room.Room, 1)
	h.Inbox() <- JoinRoom{RoomID: "r1", UserID: "alice", ConnID: "c1", Out: memberOut, Reply: joinReply}
	r1 := <-joinReply

	h.Inbox() <- WatchRooms{ConnID: "w1", RoomIDs: []string{"r2"}, Out: out, Reply: reply}
	<-reply

	// the RemoveWatcher for r1 was queued before the reply above; a
	// status query behind it flushes the room loop
	statusReply := make(chan types.RoomStatusSnapshot, 1)
	r1.Inbox() <- room.StatusQuery{Reply: statusReply}
	<-statusReply

	// r1 has no watchers left: a join no longer produces
	// room-status-update frames on the watcher channel
	drain(out)
	other := make(chan []byte, 8)
	h.Inbox() <- JoinRoom{RoomID: "r1", UserID: "bob", ConnID: "c2", Out: other, Reply: joinReply}
	<-joinReply
	select {
	case b := <-out:
		t.Fatalf("watcher still subscribed to r1, got %s", b)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestHub_RoomRemovedOnlyWhenEmpty(t *testing.T) {
	h := newTestHub(t)

	out := make(chan []byte, 8)
	reply := make(chan *room.Room, 1)
	h.Inbox() <- JoinRoom{RoomID: "r1", UserID: "alice", ConnID: "c1", Out: out, Reply: reply}
	r := <-reply

	r.Inbox() <- room.Leave{UserID: "alice", ConnID: "c1"}

	deadline := time.After(2 * time.Second)
	for getRoom(t, h, "r1") != nil {
		select {
		case <-deadline:
			t.Fatalf("empty room was never removed from the directory")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestHub_JoinRacingRetirementKeepsRoom(t *testing.T) {
	h := newTestHub(t)

	out := make(chan []byte, 8)
	reply := make(chan *room.Room, 1)
	h.Inbox() <- JoinRoom{RoomID: "r1", UserID: "alice", ConnID: "c1", Out: out, Reply: reply}
	r := <-reply

	// empty the room and immediately join again through the hub; the
	// retirement handshake must not drop the room mid-join
	r.Inbox() <- room.Leave{UserID: "alice", ConnID: "c1"}
	bobOut := make(chan []byte, 8)
	h.Inbox() <- JoinRoom{RoomID: "r1", UserID: "bob", ConnID: "c2", Out: bobOut, Reply: reply}
	<-reply

	time.Sleep(200 * time.Millisecond) // let any stale retirement settle

	got := getRoom(t, h, "r1")
	if got == nil {
		t.Fatalf("room with a live member was removed")
	}
	statusReply := make(chan types.RoomStatusSnapshot, 1)
	got.Inbox() <- room.StatusQuery{Reply: statusReply}
	if snap := <-statusReply; snap.ConnectedPlayerCount != 1 {
		t.Fatalf("bob's membership lost: %+v", snap)
	}
}

func drain(ch chan []byte) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
