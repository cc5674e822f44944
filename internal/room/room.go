package room

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/codeclash/battle-backend/internal/battle"
	"github.com/codeclash/battle-backend/internal/metrics"
	"github.com/codeclash/battle-backend/internal/store"
	"github.com/codeclash/battle-backend/internal/types"
)

type Msg interface{ isRoomMsg() }

// Join binds a user's connection to the room. A join for an already
// occupied userID replaces the old connection's mapping; the stale
// connection is orphaned and its eventual Leave is a no-op.
type Join struct {
	UserID string
	ConnID string
	Out    chan []byte
}

type Leave struct {
	UserID string
	ConnID string
}

type ReportScore struct {
	UserID string
	Passed int
	Total  int
	Out    chan []byte // sender's connection, for error replies
}

type StartBattle struct {
	UserID string
	Out    chan []byte
}

type CompleteBattle struct {
	UserID         string
	CompletionTime *float64
	Out            chan []byte
}

type CancelBattle struct {
	UserID string
	Out    chan []byte
}

// GetPlayers replies a players-list to the sender only, no broadcast.
type GetPlayers struct {
	Out chan []byte
}

// AddWatcher subscribes a connection to status updates and replies the
// current snapshot. Watchers never touch the battle.
type AddWatcher struct {
	ConnID string
	Out    chan []byte
	Reply  chan types.RoomStatusSnapshot
}

type RemoveWatcher struct{ ConnID string }

// PlayersQuery and StatusQuery are side-effect-free reads for the REST
// surface.
type PlayersQuery struct{ Reply chan []types.PlayerSnapshot }

type StatusQuery struct{ Reply chan types.RoomStatusSnapshot }

// Close is the hub's retirement handshake: the room confirms only if
// it is still empty, and stops its loop on confirmation.
type Close struct{ Reply chan bool }

type Shutdown struct{}

func (Join) isRoomMsg()           {}
func (Leave) isRoomMsg()          {}
func (ReportScore) isRoomMsg()    {}
func (StartBattle) isRoomMsg()    {}
func (CompleteBattle) isRoomMsg() {}
func (CancelBattle) isRoomMsg()   {}
func (GetPlayers) isRoomMsg()     {}
func (AddWatcher) isRoomMsg()     {}
func (RemoveWatcher) isRoomMsg()  {}
func (PlayersQuery) isRoomMsg()   {}
func (StatusQuery) isRoomMsg()    {}
func (Close) isRoomMsg()          {}
func (Shutdown) isRoomMsg()       {}

type member struct {
	connID string
	out    chan []byte
}

// Room is the per-room serialization domain: members, watchers and the
// battle are only touched inside its loop goroutine. Different rooms
// run fully in parallel.
type Room struct {
	id      string
	inbox   chan Msg
	members map[string]member // userID -> live connection
	watch   map[string]chan []byte
	bat     *battle.Battle

	st      store.Store
	log     *zap.Logger
	onEmpty func(*Room)
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(parent context.Context, id string, st store.Store, log *zap.Logger, onEmpty func(*Room)) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		id:      id,
		inbox:   make(chan Msg, 64),
		members: make(map[string]member),
		watch:   make(map[string]chan []byte),
		st:      st,
		log:     log.With(zap.String("room", id)),
		onEmpty: onEmpty,
		ctx:     ctx,
		cancel:  cancel,
	}
	go r.loop()
	return r
}

func (r *Room) ID() string        { return r.id }
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the loop has exited. Callers holding a stale
// handle must select against it instead of waiting on a reply a
// retired room will never send.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)
			case Leave:
				r.handleLeave(msg)
			case ReportScore:
				r.handleScore(msg)
			case StartBattle:
				r.handleStart(msg)
			case CompleteBattle:
				r.handleComplete(msg)
			case CancelBattle:
				r.handleCancel(msg)
			case GetPlayers:
				r.sendTo(msg.Out, r.playersEnvelope())
			case AddWatcher:
				r.watch[msg.ConnID] = msg.Out
				msg.Reply <- r.statusSnapshot()
			case RemoveWatcher:
				if _, ok := r.watch[msg.ConnID]; ok {
					delete(r.watch, msg.ConnID)
					r.maybeRetire()
				}
			case PlayersQuery:
				msg.Reply <- r.playersSnapshot()
			case StatusQuery:
				msg.Reply <- r.statusSnapshot()
			case Close:
				empty := len(r.members) == 0 && len(r.watch) == 0
				msg.Reply <- empty
				if empty {
					r.cancel()
					return
				}
			case Shutdown:
				r.cancel()
				return
			}
		}
	}
}

func (r *Room) handleJoin(m Join) {
	now := time.Now().UTC()
	change := "player-joined"

	// lazily start a waiting battle when no live one exists; the first
	// joiner becomes its admin
	if r.bat == nil || r.bat.Closed() {
		r.bat = battle.New(r.id, m.UserID, now)
		change = "battle-created"
		r.log.Info("battle created",
			zap.String("battle", r.bat.ID), zap.String("admin", m.UserID))
		rec := store.BattleRecord{
			ID:        r.bat.ID,
			RoomID:    r.id,
			AdminID:   m.UserID,
			Status:    string(battle.StatusWaiting),
			CreatedAt: now,
		}
		r.persist(func(ctx context.Context, st store.Store) error {
			return st.CreateBattle(ctx, rec)
		})
	}

	if old, ok := r.members[m.UserID]; ok && old.connID != m.ConnID {
		r.log.Debug("replacing connection for user", zap.String("user", m.UserID))
	}
	r.members[m.UserID] = member{connID: m.ConnID, out: m.Out}

	// joins after start are spectating members, not participants
	if err := r.bat.AddParticipant(m.UserID, now); err != nil &&
		!errors.Is(err, battle.ErrInvalidState) {
		r.log.Warn("add participant", zap.Error(err))
	}

	r.sendTo(m.Out, marshal(r.log, types.BattleStatus{
		Type:     types.MsgBattleStatus,
		Status:   string(r.bat.Status),
		IsAdmin:  r.bat.AdminID == m.UserID,
		BattleID: r.bat.ID,
	}))
	r.broadcastMembers(r.playersEnvelope())
	r.notifyWatchers(change)
}

func (r *Room) handleLeave(m Leave) {
	cur, ok := r.members[m.UserID]
	if !ok || cur.connID != m.ConnID {
		// stale disconnect from a replaced connection
		return
	}
	delete(r.members, m.UserID)

	// scores survive the disconnect; only isConnected flips
	r.broadcastMembers(r.playersEnvelope())
	r.notifyWatchers("player-left")
	r.maybeRetire()
}

func (r *Room) handleScore(m ReportScore) {
	if r.bat == nil {
		r.sendError(m.Out, "no battle in this room")
		return
	}
	if err := r.bat.UpdateScore(m.UserID, m.Passed, m.Total); err != nil {
		r.rejectTo(m.Out, err)
		return
	}
	r.broadcastMembers(marshal(r.log, types.TestResultsUpdate{
		Type:   types.MsgTestResultsUpdate,
		UserID: m.UserID,
		Passed: m.Passed,
		Total:  m.Total,
	}))
	r.broadcastMembers(r.playersEnvelope())
}

func (r *Room) handleStart(m StartBattle) {
	if r.bat == nil {
		r.sendError(m.Out, "no battle in this room")
		return
	}
	now := time.Now().UTC()
	if err := r.bat.Start(m.UserID, now); err != nil {
		r.rejectTo(m.Out, err)
		return
	}
	r.log.Info("battle started", zap.String("battle", r.bat.ID))

	batID := r.bat.ID
	r.persist(func(ctx context.Context, st store.Store) error {
		return st.StartBattle(ctx, batID, now)
	})

	r.broadcastMembers(marshal(r.log, types.BattleStarted{
		Type:      types.MsgBattleStarted,
		BattleID:  r.bat.ID,
		StartedAt: now,
	}))
	r.notifyWatchers("battle-started")
}

func (r *Room) handleComplete(m CompleteBattle) {
	if r.bat == nil {
		r.sendError(m.Out, "no battle in this room")
		return
	}
	now := time.Now().UTC()
	results, err := r.bat.Complete(m.UserID, now)
	if err != nil {
		r.rejectTo(m.Out, err)
		return
	}
	r.log.Info("battle completed",
		zap.String("battle", r.bat.ID), zap.Int("participants", len(results)))
	metrics.BattlesCompleted.Inc()

	batID := r.bat.ID
	recs := participationRecords(batID, r.id, results, now)
	completionTime := m.CompletionTime
	r.persist(func(ctx context.Context, st store.Store) error {
		if err := st.CompleteBattle(ctx, batID, now, completionTime); err != nil {
			return err
		}
		return st.RecordParticipations(ctx, batID, recs)
	})

	r.broadcastMembers(marshal(r.log, types.BattleCompleted{
		Type:     types.MsgBattleCompleted,
		BattleID: batID,
		Results:  wireResults(results),
	}))
	r.notifyWatchers("battle-completed")
}

func (r *Room) handleCancel(m CancelBattle) {
	if r.bat == nil {
		r.sendError(m.Out, "no battle in this room")
		return
	}
	now := time.Now().UTC()
	if err := r.bat.Cancel(m.UserID, now); err != nil {
		r.rejectTo(m.Out, err)
		return
	}
	r.log.Info("battle cancelled", zap.String("battle", r.bat.ID))

	batID := r.bat.ID
	r.persist(func(ctx context.Context, st store.Store) error {
		return st.CancelBattle(ctx, batID, now)
	})

	// isAdmin is relative to the recipient, so marshal per member
	for userID, mem := range r.members {
		r.sendTo(mem.out, marshal(r.log, types.BattleStatus{
			Type:     types.MsgBattleStatus,
			Status:   string(battle.StatusCancelled),
			IsAdmin:  r.bat.AdminID == userID,
			BattleID: batID,
		}))
	}
	r.notifyWatchers("battle-cancelled")
}

// maybeRetire asks the hub to remove the room once both sets are
// empty. The hub confirms with a Close handshake, so a join racing
// this notification keeps the room alive.
func (r *Room) maybeRetire() {
	if len(r.members) == 0 && len(r.watch) == 0 && r.onEmpty != nil {
		go r.onEmpty(r)
	}
}

// persist runs a store write off the loop goroutine so it can never
// stall live traffic. Failures are logged and swallowed; the in-memory
// session is the source of truth.
func (r *Room) persist(write func(context.Context, store.Store) error) {
	if r.st == nil {
		return
	}
	st, log := r.st, r.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := write(ctx, st); err != nil {
			log.Error("store write failed", zap.Error(err))
		}
	}()
}

func participationRecords(battleID, roomID string, results []battle.Result, at time.Time) []store.ParticipationRecord {
	recs := make([]store.ParticipationRecord, len(results))
	for i, res := range results {
		recs[i] = store.ParticipationRecord{
			BattleID:    battleID,
			RoomID:      roomID,
			UserID:      res.UserID,
			Placement:   res.Placement,
			TestsPassed: res.TestsPassed,
			TotalTests:  res.TotalTests,
			RecordedAt:  at,
		}
	}
	return recs
}
