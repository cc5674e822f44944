package types

import "time"

// Client -> Server frame types.
const (
	MsgJoin           = "join"
	MsgTestResults    = "test-results"
	MsgGetPlayers     = "get-players"
	MsgStartBattle    = "start-battle"
	MsgCompleteBattle = "complete-battle"
	MsgCancelBattle   = "cancel-battle"
	MsgWatchRooms     = "watch-rooms"
	MsgUnwatchRooms   = "unwatch-rooms"
)

// Server -> Client frame types.
const (
	MsgPlayersList       = "players-list"
	MsgTestResultsUpdate = "test-results-update"
	MsgBattleStatus      = "battle-status"
	MsgBattleStarted     = "battle-started"
	MsgBattleCompleted   = "battle-completed"
	MsgRoomStatuses      = "room-statuses"
	MsgRoomStatusUpdate  = "room-status-update"
	MsgUnwatched         = "unwatched"
	MsgError             = "error"
)

// ClientMessage is the single inbound envelope; which fields matter
// depends on Type.
type ClientMessage struct {
	Type           string   `json:"type"`
	RoomID         string   `json:"roomId,omitempty"`
	UserID         string   `json:"userId,omitempty"`
	Passed         int      `json:"passed,omitempty"`
	Total          int      `json:"total,omitempty"`
	CompletionTime *float64 `json:"completionTime,omitempty"`
	RoomIDs        []string `json:"roomIds,omitempty"`
}

// PlayerSnapshot is one row of a players-list, in first-join order.
type PlayerSnapshot struct {
	UserID      string    `json:"userId"`
	TestsPassed int       `json:"testsPassed"`
	TotalTests  int       `json:"totalTests"`
	JoinedAt    time.Time `json:"joinedAt"`
	IsConnected bool      `json:"isConnected"`
}

type PlayersList struct {
	Type    string           `json:"type"`
	Players []PlayerSnapshot `json:"players"`
}

type TestResultsUpdate struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Passed int    `json:"passed"`
	Total  int    `json:"total"`
}

// BattleStatus is addressed to a single member; IsAdmin is relative
// to the recipient.
type BattleStatus struct {
	Type     string `json:"type"`
	Status   string `json:"status"`
	IsAdmin  bool   `json:"isAdmin"`
	BattleID string `json:"battleId"`
}

type BattleStarted struct {
	Type      string    `json:"type"`
	BattleID  string    `json:"battleId"`
	StartedAt time.Time `json:"startedAt"`
}

type BattleResult struct {
	UserID      string `json:"userId"`
	Placement   int    `json:"placement"`
	TestsPassed int    `json:"testsPassed"`
	TotalTests  int    `json:"totalTests"`
}

type BattleCompleted struct {
	Type     string         `json:"type"`
	BattleID string         `json:"battleId"`
	Results  []BattleResult `json:"results"`
}

// RoomStatusSnapshot is the reduced, watcher-facing view of a room.
// Status is empty while no battle has ever run in the room.
type RoomStatusSnapshot struct {
	Status               string     `json:"status,omitempty"`
	CanJoin              bool       `json:"canJoin"`
	IsActive             bool       `json:"isActive"`
	IsWaiting            bool       `json:"isWaiting"`
	IsCompleted          bool       `json:"isCompleted"`
	ConnectedPlayerCount int        `json:"connectedPlayerCount"`
	ParticipantCount     int        `json:"participantCount"`
	StartedAt            *time.Time `json:"startedAt,omitempty"`
}

// RoomStatuses is the initial reply to watch-rooms.
type RoomStatuses struct {
	Type  string                        `json:"type"`
	Rooms map[string]RoomStatusSnapshot `json:"rooms"`
}

// RoomStatusUpdate notifies watchers of a single room's change.
type RoomStatusUpdate struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	RoomStatusSnapshot
	Change string `json:"change"`
}

type Unwatched struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
