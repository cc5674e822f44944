package room

import (
	"encoding/json"
	"errors"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/codeclash/battle-backend/internal/battle"
	"github.com/codeclash/battle-backend/internal/metrics"
	"github.com/codeclash/battle-backend/internal/types"
)

func marshal(log *zap.Logger, v any) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error("marshal envelope", zap.Error(err))
		return nil
	}
	return payload
}

// sendTo is fire-and-forget: a full outbox drops the frame and is
// logged, never blocking the room loop.
func (r *Room) sendTo(out chan<- []byte, payload []byte) {
	if payload == nil || out == nil {
		return
	}
	select {
	case out <- payload:
	default:
		metrics.DroppedFrames.Inc()
		r.log.Warn("outbox full, frame dropped")
	}
}

func (r *Room) broadcastMembers(payload []byte) {
	for _, m := range r.members {
		r.sendTo(m.out, payload)
	}
}

func (r *Room) notifyWatchers(change string) {
	if len(r.watch) == 0 {
		return
	}
	payload := marshal(r.log, types.RoomStatusUpdate{
		Type:               types.MsgRoomStatusUpdate,
		RoomID:             r.id,
		RoomStatusSnapshot: r.statusSnapshot(),
		Change:             change,
	})
	for _, out := range r.watch {
		r.sendTo(out, payload)
	}
}

func (r *Room) sendError(out chan<- []byte, msg string) {
	r.sendTo(out, marshal(r.log, types.ErrorMessage{
		Type:    types.MsgError,
		Message: msg,
	}))
}

// rejectTo maps a state-machine error to an error reply for the
// requesting connection only. Rejections never broadcast.
func (r *Room) rejectTo(out chan<- []byte, err error) {
	switch {
	case errors.Is(err, battle.ErrNotAdmin):
		r.sendError(out, "NotAdmin: only the battle admin can do that")
	case errors.Is(err, battle.ErrNotInBattle):
		r.sendError(out, "NotInBattle: join the battle before reporting results")
	case errors.Is(err, battle.ErrInvalidState):
		r.sendError(out, "InvalidState: action not allowed in the current battle state")
	default:
		r.sendError(out, err.Error())
	}
}

func (r *Room) playersEnvelope() []byte {
	return marshal(r.log, types.PlayersList{
		Type:    types.MsgPlayersList,
		Players: r.playersSnapshot(),
	})
}

// playersSnapshot joins participant records with live connectivity,
// in first-join order. O(members), no side effects.
func (r *Room) playersSnapshot() []types.PlayerSnapshot {
	if r.bat == nil {
		return []types.PlayerSnapshot{}
	}
	return lo.Map(r.bat.Participants(), func(p battle.Participant, _ int) types.PlayerSnapshot {
		_, connected := r.members[p.UserID]
		return types.PlayerSnapshot{
			UserID:      p.UserID,
			TestsPassed: p.TestsPassed,
			TotalTests:  p.TotalTests,
			JoinedAt:    p.JoinedAt,
			IsConnected: connected,
		}
	})
}

func (r *Room) statusSnapshot() types.RoomStatusSnapshot {
	snap := types.RoomStatusSnapshot{
		CanJoin:              true,
		ConnectedPlayerCount: len(r.members),
	}
	if r.bat == nil {
		return snap
	}
	snap.Status = string(r.bat.Status)
	snap.IsWaiting = r.bat.Status == battle.StatusWaiting
	snap.IsActive = r.bat.Status == battle.StatusActive
	snap.IsCompleted = r.bat.Status == battle.StatusCompleted
	snap.CanJoin = snap.IsWaiting
	snap.ParticipantCount = r.bat.ParticipantCount()
	snap.StartedAt = r.bat.StartedAt
	return snap
}

func wireResults(results []battle.Result) []types.BattleResult {
	return lo.Map(results, func(res battle.Result, _ int) types.BattleResult {
		return types.BattleResult{
			UserID:      res.UserID,
			Placement:   res.Placement,
			TestsPassed: res.TestsPassed,
			TotalTests:  res.TotalTests,
		}
	})
}
