// Package services – MessageService
//
// This file implements direct messaging between admins and employees.
// Parties are addressed with composite "role_id" identifiers
// ("admin_<uuid>", "employee_<id>", or a bare employee number). There is no
// conversation row: a channel is the set of messages exchanged by two
// parties, and messages are append-only.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/zalagh/plancher-backend/internal/domain"
	"github.com/zalagh/plancher-backend/internal/repo"
)

// MaxMessageRunes caps a direct message.
const MaxMessageRunes = 4000

// Contact is one entry of the messaging directory.
type Contact struct {
	ID      string        `json:"id"` // role_id
	Role    domain.Role   `json:"role"`
	Nom     string        `json:"nom"`
	Prenom  string        `json:"prenom"`
	Secteur domain.Sector `json:"secteur,omitempty"`
}

// MessageService sends and lists direct messages.
type MessageService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// Contacts lists every admin and every employee except me.
func (s *MessageService) Contacts(ctx context.Context, me domain.Party) ([]Contact, error) {
	admins, err := repo.ListAdmins(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	emps, err := repo.ListEmployees(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	out := make([]Contact, 0, len(admins)+len(emps))
	for _, a := range admins {
		p := domain.AdminParty(a.ID)
		if p == me {
			continue
		}
		out = append(out, Contact{ID: p.String(), Role: domain.RoleAdmin, Nom: a.Nom, Prenom: a.Prenom})
	}
	for _, e := range emps {
		p := domain.EmployeeParty(e.ID)
		if p == me {
			continue
		}
		out = append(out, Contact{ID: p.String(), Role: domain.RoleEmployee, Nom: e.Nom, Prenom: e.Prenom, Secteur: e.Secteur})
	}
	return out, nil
}

// Conversation returns the messages between me and contactID, oldest first.
func (s *MessageService) Conversation(ctx context.Context, me domain.Party, contactID string) ([]repo.MessageView, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "Conversation",
		trace.WithAttributes(
			attribute.String("from", me.String()),
			attribute.String("contact", contactID),
		),
	)
	defer span.End()

	other, err := domain.ParseParty(contactID)
	if err != nil {
		return nil, invalid(err.Error())
	}
	return repo.ListConversation(ctx, s.DB, me, other)
}

// Send stores a message from me to recipientID.
func (s *MessageService) Send(ctx context.Context, me domain.Party, recipientID, content string) (*domain.Message, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("from", me.String()),
			attribute.String("to", recipientID),
		),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if strings.TrimSpace(recipientID) == "" || content == "" {
		return nil, invalid("recipient_id and content required")
	}
	if utf8.RuneCountInString(content) > MaxMessageRunes {
		return nil, invalid("content too long")
	}
	to, err := domain.ParseParty(recipientID)
	if err != nil {
		return nil, invalid(err.Error())
	}
	if err := s.ensureExists(ctx, to); err != nil {
		return nil, err
	}
	return repo.CreateMessage(ctx, s.DB, me, to, content)
}

func (s *MessageService) ensureExists(ctx context.Context, p domain.Party) error {
	var err error
	if id, ok := p.EmployeeID(); ok {
		_, err = repo.GetEmployee(ctx, s.DB, id)
	} else {
		_, err = repo.GetAdmin(ctx, s.DB, p.ID)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return ErrRecipientNotFound
	}
	return err
}
