package store

import (
	"context"
	"time"
)

// BattleRecord is the durable row for one battle. The in-memory
// session owns the id; the store only records it.
type BattleRecord struct {
	ID             string `gorm:"primaryKey"`
	RoomID         string `gorm:"index"`
	AdminID        string
	Status         string
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CompletionTime *float64 // seconds, client-reported
}

type ParticipationRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	BattleID    string `gorm:"index"`
	RoomID      string
	UserID      string `gorm:"index"`
	Placement   int
	TestsPassed int
	TotalTests  int
	RecordedAt  time.Time
}

type UserStats struct {
	UserID           string  `json:"userId"`
	BattlesPlayed    int64   `json:"battlesPlayed"`
	Wins             int64   `json:"wins"`
	TotalTestsPassed int64   `json:"totalTestsPassed"`
	AvgPlacement     float64 `json:"avgPlacement"`
}

// Store is the durable side of battle lifecycles. Writes from the
// live path are best-effort: callers log failures and move on. All
// methods fail closed (return an error) rather than silently no-op.
type Store interface {
	CreateBattle(ctx context.Context, rec BattleRecord) error
	StartBattle(ctx context.Context, battleID string, startedAt time.Time) error
	CompleteBattle(ctx context.Context, battleID string, completedAt time.Time, completionTime *float64) error
	CancelBattle(ctx context.Context, battleID string, cancelledAt time.Time) error
	GetBattle(ctx context.Context, roomID string) (*BattleRecord, error)
	GetActiveBattle(ctx context.Context, roomID string) (*BattleRecord, error)
	IsAdmin(ctx context.Context, roomID, userID string) (bool, error)
	RecordParticipations(ctx context.Context, battleID string, recs []ParticipationRecord) error
	UserBattles(ctx context.Context, userID string) ([]ParticipationRecord, error)
	UserStats(ctx context.Context, userID string) (UserStats, error)
}
