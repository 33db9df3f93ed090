// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Admin and
// Employee models.
//
// Error semantics:
//   - Single-row lookups return ErrNotFound when the row is missing.
//   - A duplicate employee email is reported as ErrDuplicate.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zalagh/plancher-backend/internal/domain"
)

// GetAdmin fetches an admin by id.
func GetAdmin(ctx context.Context, db *gorm.DB, id string) (*domain.Admin, error) {
	var a domain.Admin
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAdminByEmail fetches an admin by email (case-insensitive).
func GetAdminByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Admin, error) {
	var a domain.Admin
	err := db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAdmins returns every admin ordered by last name then first name.
func ListAdmins(ctx context.Context, db *gorm.DB) ([]domain.Admin, error) {
	var out []domain.Admin
	err := db.WithContext(ctx).Order("nom asc, prenom asc").Find(&out).Error
	return out, err
}

// EnsureAdmin inserts an admin with the given email when none exists and
// returns the stored row either way.
func EnsureAdmin(ctx context.Context, db *gorm.DB, email, nom, prenom string) (*domain.Admin, error) {
	a, err := GetAdminByEmail(ctx, db, email)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	a = &domain.Admin{
		ID:        uuid.NewString(),
		Nom:       nom,
		Prenom:    prenom,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// SetAdminPasswordHash overwrites an admin's password hash.
func SetAdminPasswordHash(ctx context.Context, db *gorm.DB, id, hash string) error {
	res := db.WithContext(ctx).
		Model(&domain.Admin{}).
		Where("id = ?", id).
		Update("mdp_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateEmployee inserts e, assigning its id and creation time.
func CreateEmployee(ctx context.Context, db *gorm.DB, e *domain.Employee) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetEmployee fetches an employee by id.
func GetEmployee(ctx context.Context, db *gorm.DB, id uint) (*domain.Employee, error) {
	var e domain.Employee
	if err := db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEmployeeByEmail fetches an employee by email (case-insensitive).
func GetEmployeeByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Employee, error) {
	var e domain.Employee
	err := db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEmployees returns all employees, newest id first.
func ListEmployees(ctx context.Context, db *gorm.DB) ([]domain.Employee, error) {
	var out []domain.Employee
	err := db.WithContext(ctx).Order("id desc").Find(&out).Error
	return out, err
}

// ListEmployeeIDsBySector returns the ids of every employee in sector.
func ListEmployeeIDsBySector(ctx context.Context, db *gorm.DB, sector domain.Sector) ([]uint, error) {
	var ids []uint
	err := db.WithContext(ctx).
		Model(&domain.Employee{}).
		Where("secteur = ?", sector).
		Order("id asc").
		Pluck("id", &ids).Error
	return ids, err
}
