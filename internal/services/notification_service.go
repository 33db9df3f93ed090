// Package services – NotificationService
//
// This file implements admin→employee notifications: sector broadcasts (one
// row per employee of the sector, written in a single transaction), the two
// portal listings, read/take marking, and reply threads.
//
// Ownership rules:
//   - Employees only see, mark, and reply to their own notifications; any
//     other id is reported as ErrNotificationNotFound.
//   - Admins can read and reply to any notification that exists.
//
// Notification bodies are HTML written by admins or by the assistant. They are
// sanitized with a bluemonday UGC policy before storage; replies are stored
// as plain text.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/zalagh/plancher-backend/internal/domain"
	"github.com/zalagh/plancher-backend/internal/repo"
)

const (
	// DefaultNotificationLimit is the admin listing size when none is given.
	DefaultNotificationLimit = 200
	// MaxNotificationLimit caps the admin listing size.
	MaxNotificationLimit = 1000
)

// bodyPolicy keeps the markup produced by the admin portal and the assistant
// (links opening in a new tab, inline colors and vertical margins).
var bodyPolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("target").Matching(regexp.MustCompile(`^_blank$`)).OnElements("a")
	p.AllowStyles("color", "margin-top", "margin-bottom").OnElements("div", "span", "p")
	return p
}()

// SanitizeBody strips unsafe markup from a notification body.
func SanitizeBody(html string) string {
	return strings.TrimSpace(bodyPolicy.Sanitize(html))
}

// Broadcast is the input of NotificationService.Broadcast.
type Broadcast struct {
	Sector   string
	Title    string
	BodyHTML string
	// AdminID is recorded as the author when set.
	AdminID string
}

// NotificationService manages notifications and their reply threads.
type NotificationService struct {
	DB *gorm.DB

	now func() time.Time
}

func (s *NotificationService) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

// Broadcast creates one notification per employee of b.Sector and returns
// how many were created. Either every row is written or none is.
func (s *NotificationService) Broadcast(ctx context.Context, b Broadcast) (int, error) {
	ctx, span := otel.Tracer("services/NotificationService").Start(ctx, "Broadcast",
		trace.WithAttributes(attribute.String("sector", b.Sector)),
	)
	defer span.End()

	title := strings.TrimSpace(b.Title)
	if strings.TrimSpace(b.Sector) == "" || title == "" || strings.TrimSpace(b.BodyHTML) == "" {
		return 0, invalid("secteur, title and body_html required")
	}
	sector, ok := domain.ParseSector(b.Sector)
	if !ok {
		return 0, invalid("invalid secteur")
	}
	body := SanitizeBody(b.BodyHTML)
	if body == "" {
		return 0, invalid("body_html is empty after sanitizing")
	}

	var count int
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := repo.ListEmployeeIDsBySector(ctx, tx, sector)
		if err != nil {
			return err
		}
		now := s.clock()
		rows := make([]domain.Notification, 0, len(ids))
		for _, id := range ids {
			n := domain.Notification{
				ID:         uuid.NewString(),
				EmployeeID: id,
				Title:      title,
				BodyHTML:   body,
				CreatedAt:  now,
			}
			if b.AdminID != "" {
				admin := b.AdminID
				n.CreatedByAdmin = &admin
			}
			rows = append(rows, n)
		}
		if err := repo.CreateNotifications(ctx, tx, rows); err != nil {
			return err
		}
		count = len(rows)
		return nil
	})
	if err != nil {
		return 0, err
	}
	notificationsSent.WithLabelValues(string(sector)).Add(float64(count))
	span.SetAttributes(attribute.Int("recipients", count))
	return count, nil
}

// ListForAdmin returns the newest notifications, optionally restricted to a
// sector. limit <= 0 means DefaultNotificationLimit.
func (s *NotificationService) ListForAdmin(ctx context.Context, sector string, limit int) ([]repo.NotificationView, error) {
	var sec domain.Sector
	if strings.TrimSpace(sector) != "" {
		v, ok := domain.ParseSector(sector)
		if !ok {
			return nil, invalid("invalid secteur")
		}
		sec = v
	}
	switch {
	case limit <= 0:
		limit = DefaultNotificationLimit
	case limit > MaxNotificationLimit:
		limit = MaxNotificationLimit
	}
	return repo.ListNotificationsForAdmin(ctx, s.DB, sec, limit)
}

// ListForEmployee returns an employee's notifications, newest first.
func (s *NotificationService) ListForEmployee(ctx context.Context, employeeID uint) ([]repo.NotificationView, error) {
	return repo.ListNotificationsForEmployee(ctx, s.DB, employeeID)
}

// MarkRead stamps read_at on an employee's own notification.
func (s *NotificationService) MarkRead(ctx context.Context, employeeID uint, id string) error {
	return s.mark(ctx, employeeID, id, "read_at")
}

// MarkTaken stamps taken_at on an employee's own notification.
func (s *NotificationService) MarkTaken(ctx context.Context, employeeID uint, id string) error {
	return s.mark(ctx, employeeID, id, "taken_at")
}

func (s *NotificationService) mark(ctx context.Context, employeeID uint, id, column string) error {
	err := repo.MarkNotification(ctx, s.DB, id, employeeID, column, s.clock())
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotificationNotFound
	}
	return err
}

// AdminReplies returns the thread of any existing notification.
func (s *NotificationService) AdminReplies(ctx context.Context, id string) ([]repo.ReplyView, error) {
	if _, err := s.existing(ctx, id); err != nil {
		return nil, err
	}
	return repo.ListReplies(ctx, s.DB, id)
}

// EmployeeReplies returns the thread of one of the employee's notifications.
func (s *NotificationService) EmployeeReplies(ctx context.Context, employeeID uint, id string) ([]repo.ReplyView, error) {
	if _, err := s.owned(ctx, employeeID, id); err != nil {
		return nil, err
	}
	return repo.ListReplies(ctx, s.DB, id)
}

// AdminReply appends an admin message to a notification thread.
func (s *NotificationService) AdminReply(ctx context.Context, adminID, id, body string) (*domain.NotificationReply, error) {
	ctx, span := otel.Tracer("services/NotificationService").Start(ctx, "AdminReply",
		trace.WithAttributes(attribute.String("notification.id", id)),
	)
	defer span.End()

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, invalid("body required")
	}
	if _, err := s.existing(ctx, id); err != nil {
		return nil, err
	}
	r := &domain.NotificationReply{
		ID:             uuid.NewString(),
		NotificationID: id,
		SenderType:     domain.RoleAdmin,
		SenderAdminID:  &adminID,
		Body:           body,
		CreatedAt:      s.clock(),
	}
	if err := repo.CreateReply(ctx, s.DB, r); err != nil {
		return nil, err
	}
	return r, nil
}

// EmployeeReply appends an employee message to one of their notifications.
func (s *NotificationService) EmployeeReply(ctx context.Context, employeeID uint, id, body string) (*domain.NotificationReply, error) {
	ctx, span := otel.Tracer("services/NotificationService").Start(ctx, "EmployeeReply",
		trace.WithAttributes(attribute.String("notification.id", id)),
	)
	defer span.End()

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, invalid("body required")
	}
	if _, err := s.owned(ctx, employeeID, id); err != nil {
		return nil, err
	}
	r := &domain.NotificationReply{
		ID:               uuid.NewString(),
		NotificationID:   id,
		SenderType:       domain.RoleEmployee,
		SenderEmployeeID: &employeeID,
		Body:             body,
		CreatedAt:        s.clock(),
	}
	if err := repo.CreateReply(ctx, s.DB, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *NotificationService) existing(ctx context.Context, id string) (*domain.Notification, error) {
	n, err := repo.GetNotification(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotificationNotFound
	}
	return n, err
}

func (s *NotificationService) owned(ctx context.Context, employeeID uint, id string) (*domain.Notification, error) {
	n, err := repo.GetEmployeeNotification(ctx, s.DB, id, employeeID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotificationNotFound
	}
	return n, err
}
