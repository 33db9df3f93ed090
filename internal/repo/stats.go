// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for conditional responses (ETag generation) and for the assistant's
// business-context preamble. Each function is context-aware and safe to call
// from services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/zalagh/plancher-backend/internal/domain"
)

// DemandesStats returns the number of demandes and the greatest UpdatedAt
// among them. When the table is empty, count is 0 and maxUpdatedAt is nil.
func DemandesStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Demande{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.Demande{}).
		Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// MonthTotal is the sum of demande prices for one calendar month.
type MonthTotal struct {
	Month string  `json:"month"` // YYYY-MM
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

// MonthlyTotals aggregates demande prices for the last n calendar months
// (the current one included), oldest first. Months without demandes are
// reported with zero totals. Aggregation happens in Go so the query is the
// same on SQLite and PostgreSQL.
func MonthlyTotals(ctx context.Context, db *gorm.DB, now time.Time, n int) ([]MonthTotal, error) {
	if n <= 0 {
		return nil, nil
	}
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(n - 1), 0)

	var rows []struct {
		Prix      float64
		CreatedAt time.Time
	}
	err := db.WithContext(ctx).
		Model(&domain.Demande{}).
		Select("prix, created_at").
		Where("created_at >= ?", start).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]MonthTotal, n)
	index := make(map[string]int, n)
	for i := 0; i < n; i++ {
		key := start.AddDate(0, i, 0).Format("2006-01")
		out[i] = MonthTotal{Month: key}
		index[key] = i
	}
	for _, r := range rows {
		if i, ok := index[r.CreatedAt.UTC().Format("2006-01")]; ok {
			out[i].Total += r.Prix
			out[i].Count++
		}
	}
	return out, nil
}
