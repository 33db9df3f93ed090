// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for notifications
// and their reply threads, including the joined read models used by the two
// portals.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/zalagh/plancher-backend/internal/domain"
)

// NotificationView is a notification joined with its recipient and author names.
type NotificationView struct {
	ID             string        `json:"id"`
	EmployeeID     uint          `json:"employee_id"`
	Title          string        `json:"title"`
	BodyHTML       string        `json:"body_html"        gorm:"column:body_html"`
	CreatedByAdmin *string       `json:"created_by_admin" gorm:"column:created_by_admin"`
	CreatedAt      time.Time     `json:"created_at"`
	ReadAt         *time.Time    `json:"read_at"`
	TakenAt        *time.Time    `json:"taken_at"`
	EmployeeNom    string        `json:"nom"              gorm:"column:employee_nom"`
	EmployeePrenom string        `json:"prenom"           gorm:"column:employee_prenom"`
	Secteur        domain.Sector `json:"secteur"          gorm:"column:secteur"`
	AdminNom       *string       `json:"admin_nom"        gorm:"column:admin_nom"`
	AdminPrenom    *string       `json:"admin_prenom"     gorm:"column:admin_prenom"`
}

// ReplyView is a reply joined with a display name for its sender.
type ReplyView struct {
	ID               string      `json:"id"`
	NotificationID   string      `json:"notification_id"`
	SenderType       domain.Role `json:"sender_type"`
	SenderEmployeeID *uint       `json:"sender_employee_id"`
	SenderAdminID    *string     `json:"sender_admin_id"`
	Body             string      `json:"body"`
	CreatedAt        time.Time   `json:"created_at"`
	SenderName       *string     `json:"sender_name" gorm:"column:sender_name"`
}

const notificationViewColumns = `notification.id, notification.employee_id, notification.title,
notification.body_html, notification.created_by_admin, notification.created_at,
notification.read_at, notification.taken_at,
employee.nom AS employee_nom, employee.prenom AS employee_prenom, employee.secteur AS secteur,
admin.nom AS admin_nom, admin.prenom AS admin_prenom`

func notificationViews(ctx context.Context, db *gorm.DB) *gorm.DB {
	return db.WithContext(ctx).
		Table("notification").
		Select(notificationViewColumns).
		Joins("JOIN employee ON employee.id = notification.employee_id").
		Joins("LEFT JOIN admin ON admin.id = notification.created_by_admin")
}

// CreateNotifications inserts rows in batches. Callers wanting all-or-nothing
// semantics pass a transaction handle.
func CreateNotifications(ctx context.Context, db *gorm.DB, rows []domain.Notification) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Omit("Employee").
		CreateInBatches(rows, 100).Error
}

// ListNotificationsForAdmin returns the newest notifications across all
// employees, optionally restricted to one sector.
func ListNotificationsForAdmin(ctx context.Context, db *gorm.DB, sector domain.Sector, limit int) ([]NotificationView, error) {
	q := notificationViews(ctx, db)
	if sector != "" {
		q = q.Where("employee.secteur = ?", sector)
	}
	var out []NotificationView
	err := q.Order("notification.created_at desc").Limit(limit).Scan(&out).Error
	return out, err
}

// ListNotificationsForEmployee returns an employee's notifications, newest first.
func ListNotificationsForEmployee(ctx context.Context, db *gorm.DB, employeeID uint) ([]NotificationView, error) {
	var out []NotificationView
	err := notificationViews(ctx, db).
		Where("notification.employee_id = ?", employeeID).
		Order("notification.created_at desc").
		Scan(&out).Error
	return out, err
}

// GetNotification fetches a notification by id.
func GetNotification(ctx context.Context, db *gorm.DB, id string) (*domain.Notification, error) {
	var n domain.Notification
	if err := db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// GetEmployeeNotification fetches a notification only if it belongs to
// employeeID. Foreign notifications are reported as ErrNotFound.
func GetEmployeeNotification(ctx context.Context, db *gorm.DB, id string, employeeID uint) (*domain.Notification, error) {
	var n domain.Notification
	err := db.WithContext(ctx).
		Where("id = ? AND employee_id = ?", id, employeeID).
		First(&n).Error
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// MarkNotification sets column (read_at or taken_at) to at for a notification
// owned by employeeID. It returns ErrNotFound when nothing matched.
func MarkNotification(ctx context.Context, db *gorm.DB, id string, employeeID uint, column string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND employee_id = ?", id, employeeID).
		Update(column, at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateReply appends a reply to a notification thread.
func CreateReply(ctx context.Context, db *gorm.DB, r *domain.NotificationReply) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Omit("Notification").Create(r).Error
}

// ListReplies returns a notification's thread in chronological order.
func ListReplies(ctx context.Context, db *gorm.DB, notificationID string) ([]ReplyView, error) {
	var out []ReplyView
	err := db.WithContext(ctx).
		Table("notification_reply AS r").
		Select(`r.id, r.notification_id, r.sender_type, r.sender_employee_id, r.sender_admin_id,
r.body, r.created_at,
COALESCE(e.prenom || ' ' || e.nom, a.prenom || ' ' || a.nom) AS sender_name`).
		Joins("LEFT JOIN employee e ON r.sender_type = 'employee' AND e.id = r.sender_employee_id").
		Joins("LEFT JOIN admin a ON r.sender_type = 'admin' AND a.id = r.sender_admin_id").
		Where("r.notification_id = ?", notificationID).
		Order("r.created_at asc").
		Scan(&out).Error
	return out, err
}
