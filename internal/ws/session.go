package ws

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/codeclash/battle-backend/internal/metrics"
	"github.com/codeclash/battle-backend/internal/room"
	"github.com/codeclash/battle-backend/internal/types"
)

// session is the per-connection registry entry: the connection starts
// with no room and no user identity, and a join binds both. A second
// join re-binds (the room's replace-on-join rule applies).
type session struct {
	connID string
	userID string
	roomID string
	room   *room.Room
	out    chan []byte
	log    *zap.Logger
}

func newSession(connID string, log *zap.Logger) *session {
	return &session{
		connID: connID,
		out:    make(chan []byte, 32),
		log:    log.With(zap.String("conn", connID)),
	}
}

func (s *session) bind(r *room.Room, roomID, userID string) {
	s.room = r
	s.roomID = roomID
	s.userID = userID
}

// send is non-blocking like every other delivery in the system; a
// full outbox drops the frame.
func (s *session) send(payload []byte) {
	select {
	case s.out <- payload:
	default:
		metrics.DroppedFrames.Inc()
		s.log.Warn("session outbox full, frame dropped")
	}
}

func (s *session) sendJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.log.Error("marshal reply", zap.Error(err))
		return
	}
	s.send(payload)
}

func (s *session) sendError(msg string) {
	s.sendJSON(types.ErrorMessage{Type: types.MsgError, Message: msg})
}
