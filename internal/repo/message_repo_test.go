package repo

import (
	"context"
	"testing"
	"time"

	"github.com/zalagh/plancher-backend/internal/domain"
)

func TestConversation_BothDirectionsOnly(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	admin, _ := EnsureAdmin(ctx, db, "khalid@gmail.com", "Khalid", "Admin")
	a := seedEmployee(t, db, "Alpha", domain.SectorFinance)
	b := seedEmployee(t, db, "Beta", domain.SectorFinance)
	c := seedEmployee(t, db, "Gamma", domain.SectorChantier)

	pa, pb, pc := domain.EmployeeParty(a.ID), domain.EmployeeParty(b.ID), domain.EmployeeParty(c.ID)
	padm := domain.AdminParty(admin.ID)

	steps := []struct {
		from, to domain.Party
		text     string
	}{
		{pa, pb, "salut"},
		{pb, pa, "bonjour"},
		{pa, pc, "autre canal"},
		{pa, padm, "question admin"},
		{padm, pa, "réponse admin"},
	}
	for _, s := range steps {
		if _, err := CreateMessage(ctx, db, s.from, s.to, s.text); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
		time.Sleep(2 * time.Millisecond) // distinct timestamps for ordering
	}

	ab, err := ListConversation(ctx, db, pa, pb)
	if err != nil {
		t.Fatalf("ListConversation: %v", err)
	}
	if len(ab) != 2 || ab[0].Content != "salut" || ab[1].Content != "bonjour" {
		t.Fatalf("unexpected a<->b channel: %+v", ab)
	}
	if ab[0].SenderName == nil || *ab[0].SenderName != "PAlpha Alpha" {
		t.Fatalf("sender name missing: %+v", ab[0])
	}

	withAdmin, err := ListConversation(ctx, db, pa, padm)
	if err != nil || len(withAdmin) != 2 {
		t.Fatalf("admin channel: %v %d", err, len(withAdmin))
	}
	if withAdmin[1].SenderType != domain.RoleAdmin || withAdmin[1].SenderName == nil || *withAdmin[1].SenderName != "Admin Khalid" {
		t.Fatalf("admin sender: %+v", withAdmin[1])
	}

	// Same channel regardless of argument order.
	ba, _ := ListConversation(ctx, db, pb, pa)
	if len(ba) != 2 {
		t.Fatalf("channel must be symmetric, got %d", len(ba))
	}
}
