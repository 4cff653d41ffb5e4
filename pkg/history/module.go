// Package history archives completed rounds and serves them back a page at
// a time.
package history

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/quipslop/quipcast/pkg/game"
	"github.com/quipslop/quipcast/pkg/metrics"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const PAGE_LIMIT = 10

type Entity struct {
	ID uint `gorm:"primaryKey"`
}

// Round is an immutable JSON snapshot of a completed round. Rows are only
// ever inserted.
type Round struct {
	Entity
	Num     int `gorm:"not null"`
	Created time.Time
	Data    []byte `gorm:"not null"`
}

type Page struct {
	Rounds     []game.RoundState `json:"rounds"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	TotalPages int               `json:"totalPages"`
}

func InitDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(&Round{})
	if err != nil {
		return nil, err
	}

	return db, nil
}

type Archive struct {
	db *gorm.DB
}

func NewArchive(db *gorm.DB) *Archive {
	return &Archive{db: db}
}

func (a *Archive) Append(ctx context.Context, round *game.RoundState) error {
	data, err := json.Marshal(round)
	if err != nil {
		return err
	}

	err = a.db.WithContext(ctx).Create(&Round{
		Num:     round.Num,
		Created: time.Now(),
		Data:    data,
	}).Error
	if err != nil {
		return err
	}

	metrics.ArchivedRounds.Inc()
	return nil
}

// Page returns archived rounds newest first. Pages start at 1.
func (a *Archive) Page(ctx context.Context, page int) (*Page, error) {
	if page < 1 {
		page = 1
	}

	db := a.db.WithContext(ctx)

	var total int64
	err := db.Model(&Round{}).Count(&total).Error
	if err != nil {
		return nil, err
	}

	var rows []Round
	err = db.
		Order("id desc").
		Limit(PAGE_LIMIT).
		Offset((page - 1) * PAGE_LIMIT).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	rounds := make([]game.RoundState, 0, len(rows))
	for _, row := range rows {
		var round game.RoundState
		err := json.Unmarshal(row.Data, &round)
		if err != nil {
			log.Warn().Err(err).Uint("id", row.ID).Msg("skipping unreadable round")
			continue
		}
		rounds = append(rounds, round)
	}

	return &Page{
		Rounds:     rounds,
		Total:      total,
		Page:       page,
		Limit:      PAGE_LIMIT,
		TotalPages: int((total + PAGE_LIMIT - 1) / PAGE_LIMIT),
	}, nil
}

// ServeHTTP handles GET /api/history?page=N.
func (a *Archive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		page = 1
	}

	result, err := a.Page(r.Context(), page)
	if err != nil {
		log.Error().Err(err).Msg("could not read history")
		http.Error(w, "could not read history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
