package ws

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/codeclash/battle-backend/internal/hub"
	"github.com/codeclash/battle-backend/internal/metrics"
	"github.com/codeclash/battle-backend/internal/room"
	"github.com/codeclash/battle-backend/internal/types"
)

// Handler upgrades to websocket and runs the connection's reader loop.
// All room/user binding happens through join frames, not the URL.
func Handler(h *hub.Hub, log *zap.Logger, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			log.Debug("ws accept", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		metrics.ActiveConnections.Inc()
		defer metrics.ActiveConnections.Dec()

		sess := newSession(randID(8), log)

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go writeLoop(writeCtx, conn, sess.out)

		// Disconnect cleanup; a leave for a connection that was
		// replaced by a rejoin is a no-op in the room.
		defer func() {
			if sess.room != nil {
				sess.room.Inbox() <- room.Leave{UserID: sess.userID, ConnID: sess.connID}
			}
			h.Inbox() <- hub.Unwatch{ConnID: sess.connID}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				// Treat clean close/going-away as normal:
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				// Otherwise, just exit (cleanup in defer):
				return
			}
			metrics.FramesTotal.Inc()

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				sess.log.Debug("malformed frame", zap.Error(err))
				sess.sendError("malformed message")
				continue
			}
			dispatch(h, sess, cm)
		}
	}
}

// dispatch routes one inbound frame. Membership changes go through the
// hub; everything else goes straight to the bound room.
func dispatch(h *hub.Hub, sess *session, cm types.ClientMessage) {
	switch cm.Type {
	case types.MsgJoin:
		if cm.RoomID == "" || cm.UserID == "" {
			sess.sendError("join requires roomId and userId")
			return
		}
		if sess.room != nil && (sess.roomID != cm.RoomID || sess.userID != cm.UserID) {
			sess.room.Inbox() <- room.Leave{UserID: sess.userID, ConnID: sess.connID}
		}
		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.JoinRoom{
			RoomID: cm.RoomID,
			UserID: cm.UserID,
			ConnID: sess.connID,
			Out:    sess.out,
			Reply:  reply,
		}
		sess.bind(<-reply, cm.RoomID, cm.UserID)

	case types.MsgTestResults:
		if sess.room == nil {
			sess.sendError("not in a room")
			return
		}
		sess.room.Inbox() <- room.ReportScore{
			UserID: sess.userID,
			Passed: cm.Passed,
			Total:  cm.Total,
			Out:    sess.out,
		}

	case types.MsgGetPlayers:
		if sess.room == nil {
			sess.sendError("not in a room")
			return
		}
		sess.room.Inbox() <- room.GetPlayers{Out: sess.out}

	case types.MsgStartBattle:
		if sess.room == nil {
			sess.sendError("not in a room")
			return
		}
		sess.room.Inbox() <- room.StartBattle{UserID: sess.userID, Out: sess.out}

	case types.MsgCompleteBattle:
		if sess.room == nil {
			sess.sendError("not in a room")
			return
		}
		sess.room.Inbox() <- room.CompleteBattle{
			UserID:         sess.userID,
			CompletionTime: cm.CompletionTime,
			Out:            sess.out,
		}

	case types.MsgCancelBattle:
		if sess.room == nil {
			sess.sendError("not in a room")
			return
		}
		sess.room.Inbox() <- room.CancelBattle{UserID: sess.userID, Out: sess.out}

	case types.MsgWatchRooms:
		reply := make(chan map[string]types.RoomStatusSnapshot, 1)
		h.Inbox() <- hub.WatchRooms{
			ConnID:  sess.connID,
			RoomIDs: cm.RoomIDs,
			Out:     sess.out,
			Reply:   reply,
		}
		sess.sendJSON(types.RoomStatuses{Type: types.MsgRoomStatuses, Rooms: <-reply})

	case types.MsgUnwatchRooms:
		h.Inbox() <- hub.Unwatch{ConnID: sess.connID}
		sess.sendJSON(types.Unwatched{Type: types.MsgUnwatched, Message: "unwatched from all rooms"})

	default:
		sess.sendError("unknown message type")
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan []byte) {
	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()

	for {
		select {
		case payload := <-out:
			wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			_ = conn.Write(wctx, websocket.MessageText, payload)
			cancel()
		case <-ping.C:
			wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			_ = conn.Ping(wctx)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

func randID(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
