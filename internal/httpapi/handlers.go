package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/codeclash/battle-backend/internal/hub"
	"github.com/codeclash/battle-backend/internal/room"
	"github.com/codeclash/battle-backend/internal/store"
	"github.com/codeclash/battle-backend/internal/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func getRoom(h *hub.Hub, roomID string) *room.Room {
	reply := make(chan *room.Room, 1)
	h.Inbox() <- hub.GetRoom{RoomID: roomID, Reply: reply}
	return <-reply
}

// queryPlayers asks the room loop for its players snapshot. The handle
// came from the hub a moment ago, but the room may have retired since;
// a retired room reads as empty instead of blocking the request.
func queryPlayers(rm *room.Room) []types.PlayerSnapshot {
	reply := make(chan []types.PlayerSnapshot, 1)
	select {
	case rm.Inbox() <- room.PlayersQuery{Reply: reply}:
	case <-rm.Done():
		return []types.PlayerSnapshot{}
	}
	select {
	case players := <-reply:
		return players
	case <-rm.Done():
		return []types.PlayerSnapshot{}
	}
}

// queryStatus mirrors queryPlayers; a retired room reads like an
// unknown one, empty and joinable.
func queryStatus(rm *room.Room) types.RoomStatusSnapshot {
	reply := make(chan types.RoomStatusSnapshot, 1)
	select {
	case rm.Inbox() <- room.StatusQuery{Reply: reply}:
	case <-rm.Done():
		return types.RoomStatusSnapshot{CanJoin: true}
	}
	select {
	case snap := <-reply:
		return snap
	case <-rm.Done():
		return types.RoomStatusSnapshot{CanJoin: true}
	}
}

// RoomPlayers projects the live players snapshot. An unknown room is
// an empty list, not an error.
func RoomPlayers(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm := getRoom(h, chi.URLParam(r, "roomID"))
		players := []types.PlayerSnapshot{}
		if rm != nil {
			players = queryPlayers(rm)
		}
		writeJSON(w, http.StatusOK, struct {
			Players []types.PlayerSnapshot `json:"players"`
		}{Players: players})
	}
}

// RoomBattle projects the room's status snapshot; an absent room reads
// as joinable and empty.
func RoomBattle(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := types.RoomStatusSnapshot{CanJoin: true}
		if rm := getRoom(h, chi.URLParam(r, "roomID")); rm != nil {
			snap = queryStatus(rm)
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// RoomStatuses answers ?ids=a,b,c with one snapshot per room.
func RoomStatuses(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := map[string]types.RoomStatusSnapshot{}
		for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			snap := types.RoomStatusSnapshot{CanJoin: true}
			if rm := getRoom(h, id); rm != nil {
				snap = queryStatus(rm)
			}
			out[id] = snap
		}
		writeJSON(w, http.StatusOK, struct {
			Rooms map[string]types.RoomStatusSnapshot `json:"rooms"`
		}{Rooms: out})
	}
}

func UserBattles(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := st.UserBattles(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			http.Error(w, "failed to load battle history", http.StatusInternalServerError)
			return
		}
		if recs == nil {
			recs = []store.ParticipationRecord{}
		}
		writeJSON(w, http.StatusOK, struct {
			Battles []store.ParticipationRecord `json:"battles"`
		}{Battles: recs})
	}
}

func UserStats(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := st.UserStats(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			http.Error(w, "failed to load stats", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
