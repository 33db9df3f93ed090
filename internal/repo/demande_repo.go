// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Demande
// model: creation, listing, date-range selection, and the two path updates
// made by quote generation and signed-PDF upload.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/zalagh/plancher-backend/internal/domain"
)

// CreateDemande inserts d. The status is forced to in-progress; a new demande
// can never start out delivered.
func CreateDemande(ctx context.Context, db *gorm.DB, d *domain.Demande) error {
	d.Statut = domain.StatusInProgress
	d.PDFPath = nil
	d.PDFSignePath = nil
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(d).Error
}

// GetDemande fetches a demande by id or returns ErrNotFound.
func GetDemande(ctx context.Context, db *gorm.DB, id uint) (*domain.Demande, error) {
	var d domain.Demande
	if err := db.WithContext(ctx).Where("iddemande = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDemandes returns every demande, newest first.
func ListDemandes(ctx context.Context, db *gorm.DB) ([]domain.Demande, error) {
	var out []domain.Demande
	err := db.WithContext(ctx).
		Order("created_at desc").
		Order("iddemande desc").
		Find(&out).Error
	return out, err
}

// ListDemandesBetween returns demandes created in [from, to), newest first.
func ListDemandesBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.Demande, error) {
	var out []domain.Demande
	err := db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at desc").
		Order("iddemande desc").
		Find(&out).Error
	return out, err
}

// SetDemandePDFPath records the public path of a generated quote.
func SetDemandePDFPath(ctx context.Context, db *gorm.DB, id uint, path string) error {
	res := db.WithContext(ctx).
		Model(&domain.Demande{}).
		Where("iddemande = ?", id).
		Update("pdf_path", path)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDemandeSigned stores the signed-PDF path and flips the status to
// delivered in one statement, so the two fields never disagree.
func MarkDemandeSigned(ctx context.Context, db *gorm.DB, id uint, signedPath string) error {
	res := db.WithContext(ctx).
		Model(&domain.Demande{}).
		Where("iddemande = ?", id).
		Updates(map[string]any{
			"pdf_signe_path": signedPath,
			"statut":         domain.StatusDelivered,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecentDemandes returns the newest limit demandes.
func RecentDemandes(ctx context.Context, db *gorm.DB, limit int) ([]domain.Demande, error) {
	var out []domain.Demande
	err := db.WithContext(ctx).
		Order("created_at desc").
		Order("iddemande desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountDemandes returns the number of demandes.
func CountDemandes(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Demande{}).Count(&n).Error
	return n, err
}
