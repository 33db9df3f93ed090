// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for direct
// messages. A channel is reconstructed per query from the two parties.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zalagh/plancher-backend/internal/domain"
)

// MessageView is a message plus a display name for its sender.
type MessageView struct {
	ID            string      `json:"id"`
	SenderID      string      `json:"sender_id"`
	SenderType    domain.Role `json:"sender_type"`
	RecipientID   string      `json:"recipient_id"`
	RecipientType domain.Role `json:"recipient_type"`
	Content       string      `json:"content"`
	CreatedAt     time.Time   `json:"created_at"`
	SenderName    *string     `json:"sender_name" gorm:"column:sender_name"`
}

// CreateMessage inserts a message from one party to another.
func CreateMessage(ctx context.Context, db *gorm.DB, from, to domain.Party, content string) (*domain.Message, error) {
	m := &domain.Message{
		ID:            uuid.NewString(),
		SenderID:      from.ID,
		SenderType:    from.Role,
		RecipientID:   to.ID,
		RecipientType: to.Role,
		Content:       content,
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListConversation returns every message exchanged between a and b,
// oldest first.
func ListConversation(ctx context.Context, db *gorm.DB, a, b domain.Party) ([]MessageView, error) {
	var out []MessageView
	err := db.WithContext(ctx).
		Table("message AS m").
		Select(`m.id, m.sender_id, m.sender_type, m.recipient_id, m.recipient_type, m.content, m.created_at,
COALESCE(e.prenom || ' ' || e.nom, ad.prenom || ' ' || ad.nom) AS sender_name`).
		Joins("LEFT JOIN employee e ON m.sender_type = 'employee' AND CAST(e.id AS TEXT) = m.sender_id").
		Joins("LEFT JOIN admin ad ON m.sender_type = 'admin' AND ad.id = m.sender_id").
		Where(
			db.Where("m.sender_type = ? AND m.sender_id = ? AND m.recipient_type = ? AND m.recipient_id = ?", a.Role, a.ID, b.Role, b.ID).
				Or("m.sender_type = ? AND m.sender_id = ? AND m.recipient_type = ? AND m.recipient_id = ?", b.Role, b.ID, a.Role, a.ID),
		).
		Order("m.created_at asc").
		Scan(&out).Error
	return out, err
}
