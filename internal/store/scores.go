package store

import (
	"fmt"
	"sort"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/southernadd-cmyk/kanbanpizza2/internal/game"
)

// HighScore is the leaderboard row: top three scores per round, across all
// rooms that ever played on this server.
type HighScore struct {
	ID        uint   `gorm:"primaryKey"`
	RoomName  string `gorm:"not null"`
	Round     int    `gorm:"column:round_number;not null;uniqueIndex:idx_round_ranking"`
	Score     int    `gorm:"not null"`
	Ranking   int    `gorm:"not null;uniqueIndex:idx_round_ranking"`
	Timestamp time.Time
}

func (HighScore) TableName() string { return "high_scores" }

// Scores is the gorm-backed game.ScoreStore.
type Scores struct {
	db *gorm.DB
}

func NewScores(dsn string) (*Scores, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open scores db: %w", err)
	}
	if err := db.AutoMigrate(&HighScore{}); err != nil {
		return nil, fmt.Errorf("migrate scores db: %w", err)
	}
	return &Scores{db: db}, nil
}

// Ping verifies the connection, for the health endpoint.
func (s *Scores) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Record inserts the score and re-ranks the round's leaderboard, keeping only
// the top three rows.
func (s *Scores) Record(room string, round, score int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var current []HighScore
		if err := tx.Where("round_number = ?", round).Order("ranking").Find(&current).Error; err != nil {
			return err
		}
		current = append(current, HighScore{RoomName: room, Round: round, Score: score, Timestamp: time.Now().UTC()})
		sort.SliceStable(current, func(i, j int) bool { return current[i].Score > current[j].Score })
		if len(current) > 3 {
			current = current[:3]
		}
		if err := tx.Where("round_number = ?", round).Delete(&HighScore{}).Error; err != nil {
			return err
		}
		for rank, hs := range current {
			row := HighScore{RoomName: hs.RoomName, Round: round, Score: hs.Score, Ranking: rank + 1, Timestamp: hs.Timestamp}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Scores) Top() (map[int]map[int]game.HighScoreEntry, error) {
	var rows []HighScore
	if err := s.db.Order("round_number, ranking").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := map[int]map[int]game.HighScoreEntry{1: {}, 2: {}, 3: {}}
	for _, row := range rows {
		if out[row.Round] == nil {
			out[row.Round] = map[int]game.HighScoreEntry{}
		}
		ts := "N/A"
		if !row.Timestamp.IsZero() {
			ts = row.Timestamp.Format("2006-01-02 15:04:05")
		}
		out[row.Round][row.Ranking] = game.HighScoreEntry{RoomName: row.RoomName, Score: row.Score, Timestamp: ts}
	}
	return out, nil
}
