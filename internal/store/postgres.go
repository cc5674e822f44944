package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Postgres implements Store on a Supabase/Postgres database via GORM.
type Postgres struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewPostgres connects and migrates the battle tables. A failure here
// is fatal at startup: the server never accepts connections without a
// working store.
func NewPostgres(dsn string, log *zap.Logger) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&BattleRecord{}, &ParticipationRecord{}); err != nil {
		return nil, err
	}
	return &Postgres{db: db, log: log}, nil
}

func (p *Postgres) CreateBattle(ctx context.Context, rec BattleRecord) error {
	// idempotent under retry: the primary key is the in-memory battle id
	res := p.db.WithContext(ctx).
		Where(BattleRecord{ID: rec.ID}).
		FirstOrCreate(&rec)
	return res.Error
}

func (p *Postgres) StartBattle(ctx context.Context, battleID string, startedAt time.Time) error {
	return p.setLifecycle(ctx, battleID, map[string]any{
		"status":     "active",
		"started_at": startedAt,
	})
}

func (p *Postgres) CompleteBattle(ctx context.Context, battleID string, completedAt time.Time, completionTime *float64) error {
	return p.setLifecycle(ctx, battleID, map[string]any{
		"status":          "completed",
		"completed_at":    completedAt,
		"completion_time": completionTime,
	})
}

func (p *Postgres) CancelBattle(ctx context.Context, battleID string, cancelledAt time.Time) error {
	return p.setLifecycle(ctx, battleID, map[string]any{
		"status":       "cancelled",
		"completed_at": cancelledAt,
	})
}

func (p *Postgres) setLifecycle(ctx context.Context, battleID string, fields map[string]any) error {
	res := p.db.WithContext(ctx).
		Model(&BattleRecord{}).
		Where("id = ?", battleID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetBattle returns the most recent battle for a room, or nil.
func (p *Postgres) GetBattle(ctx context.Context, roomID string) (*BattleRecord, error) {
	var rec BattleRecord
	err := p.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetActiveBattle returns the room's waiting or active battle, or nil.
func (p *Postgres) GetActiveBattle(ctx context.Context, roomID string) (*BattleRecord, error) {
	var rec BattleRecord
	err := p.db.WithContext(ctx).
		Where("room_id = ? AND status IN ?", roomID, []string{"waiting", "active"}).
		Order("created_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (p *Postgres) IsAdmin(ctx context.Context, roomID, userID string) (bool, error) {
	rec, err := p.GetActiveBattle(ctx, roomID)
	if err != nil || rec == nil {
		return false, err
	}
	return rec.AdminID == userID, nil
}

func (p *Postgres) RecordParticipations(ctx context.Context, battleID string, recs []ParticipationRecord) error {
	if len(recs) == 0 {
		return nil
	}
	// retry-safe: wipe any rows from a previous attempt first
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("battle_id = ?", battleID).
			Delete(&ParticipationRecord{}).Error; err != nil {
			return err
		}
		return tx.Create(&recs).Error
	})
}

func (p *Postgres) UserBattles(ctx context.Context, userID string) ([]ParticipationRecord, error) {
	var recs []ParticipationRecord
	err := p.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("recorded_at DESC").
		Find(&recs).Error
	return recs, err
}

func (p *Postgres) UserStats(ctx context.Context, userID string) (UserStats, error) {
	stats := UserStats{UserID: userID}
	err := p.db.WithContext(ctx).
		Model(&ParticipationRecord{}).
		Select(
			"COUNT(*) AS battles_played, "+
				"COUNT(*) FILTER (WHERE placement = 1) AS wins, "+
				"COALESCE(SUM(tests_passed), 0) AS total_tests_passed, "+
				"COALESCE(AVG(placement), 0) AS avg_placement",
		).
		Where("user_id = ?", userID).
		Scan(&stats).Error
	return stats, err
}
