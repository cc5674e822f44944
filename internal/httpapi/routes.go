package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/codeclash/battle-backend/internal/hub"
	"github.com/codeclash/battle-backend/internal/metrics"
	"github.com/codeclash/battle-backend/internal/store"
	"github.com/codeclash/battle-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, st store.Store, log *zap.Logger, originPatterns []string) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ws", ws.Handler(h, log, originPatterns))

	r.Get("/rooms/statuses", RoomStatuses(h))
	r.Get("/rooms/{roomID}/players", RoomPlayers(h))
	r.Get("/rooms/{roomID}/battle", RoomBattle(h))

	r.Get("/users/{userID}/battles", UserBattles(st))
	r.Get("/users/{userID}/stats", UserStats(st))

	return r
}
