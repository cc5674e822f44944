package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/codeclash/battle-backend/internal/hub"
	"github.com/codeclash/battle-backend/internal/room"
	"github.com/codeclash/battle-backend/internal/store"
	"github.com/codeclash/battle-backend/internal/types"
)

// stubStore serves canned history for the pass-through endpoints.
type stubStore struct {
	battles []store.ParticipationRecord
	stats   store.UserStats
}

func (s *stubStore) CreateBattle(context.Context, store.BattleRecord) error { return nil }
func (s *stubStore) StartBattle(context.Context, string, time.Time) error   { return nil }
func (s *stubStore) CompleteBattle(context.Context, string, time.Time, *float64) error {
	return nil
}
func (s *stubStore) CancelBattle(context.Context, string, time.Time) error { return nil }
func (s *stubStore) GetBattle(context.Context, string) (*store.BattleRecord, error) {
	return nil, nil
}
func (s *stubStore) GetActiveBattle(context.Context, string) (*store.BattleRecord, error) {
	return nil, nil
}
func (s *stubStore) IsAdmin(context.Context, string, string) (bool, error) { return false, nil }
func (s *stubStore) RecordParticipations(context.Context, string, []store.ParticipationRecord) error {
	return nil
}
func (s *stubStore) UserBattles(context.Context, string) ([]store.ParticipationRecord, error) {
	return s.battles, nil
}
func (s *stubStore) UserStats(context.Context, string) (store.UserStats, error) {
	return s.stats, nil
}

func newTestServer(t *testing.T, st store.Store) (*httptest.Server, *hub.Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := hub.NewHub(ctx, nil, zap.NewNop())
	srv := httptest.NewServer(SetupRoutes(h, st, zap.NewNop(), []string{"*"}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, h
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &stubStore{})
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoomPlayers_UnknownRoomIsEmptyList(t *testing.T) {
	srv, _ := newTestServer(t, &stubStore{})

	var body struct {
		Players []map[string]any `json:"players"`
	}
	getJSON(t, srv.URL+"/rooms/ghost/players", &body)
	require.NotNil(t, body.Players)
	require.Empty(t, body.Players)
}

func TestRoomPlayers_ReflectsLiveRoom(t *testing.T) {
	srv, h := newTestServer(t, &stubStore{})

	out := make(chan []byte, 8)
	reply := make(chan *room.Room, 1)
	h.Inbox() <- hub.JoinRoom{RoomID: "r1", UserID: "alice", ConnID: "c1", Out: out, Reply: reply}
	<-reply

	var body struct {
		Players []map[string]any `json:"players"`
	}
	getJSON(t, srv.URL+"/rooms/r1/players", &body)
	require.Len(t, body.Players, 1)
	require.Equal(t, "alice", body.Players[0]["userId"])
	require.Equal(t, true, body.Players[0]["isConnected"])
}

func TestRoomStatuses_MixedKnownAndUnknown(t *testing.T) {
	srv, h := newTestServer(t, &stubStore{})

	out := make(chan []byte, 8)
	reply := make(chan *room.Room, 1)
	h.Inbox() <- hub.JoinRoom{RoomID: "r1", UserID: "alice", ConnID: "c1", Out: out, Reply: reply}
	<-reply

	var body struct {
		Rooms map[string]map[string]any `json:"rooms"`
	}
	getJSON(t, srv.URL+"/rooms/statuses?ids=r1,ghost", &body)
	require.Len(t, body.Rooms, 2)
	require.Equal(t, float64(1), body.Rooms["r1"]["connectedPlayerCount"])
	require.Equal(t, true, body.Rooms["ghost"]["canJoin"])
}

func TestRoomQueries_RetiredRoomDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rm := room.New(ctx, "r1", nil, zap.NewNop(), nil)

	// retire the room the way the hub's handshake would
	confirm := make(chan bool, 1)
	rm.Inbox() <- room.Close{Reply: confirm}
	require.True(t, <-confirm)

	done := make(chan struct{})
	var players []types.PlayerSnapshot
	var snap types.RoomStatusSnapshot
	go func() {
		players = queryPlayers(rm)
		snap = queryStatus(rm)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("query against a retired room never answered")
	}
	require.Empty(t, players)
	require.True(t, snap.CanJoin, "retired room should read like an unknown one")
}

func TestUserEndpoints_PassThrough(t *testing.T) {
	st := &stubStore{
		battles: []store.ParticipationRecord{{BattleID: "b1", UserID: "alice", Placement: 1}},
		stats:   store.UserStats{UserID: "alice", BattlesPlayed: 4, Wins: 2},
	}
	srv, _ := newTestServer(t, st)

	var hist struct {
		Battles []map[string]any `json:"battles"`
	}
	getJSON(t, srv.URL+"/users/alice/battles", &hist)
	require.Len(t, hist.Battles, 1)

	var stats store.UserStats
	getJSON(t, srv.URL+"/users/alice/stats", &stats)
	require.Equal(t, int64(2), stats.Wins)
}
