package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/zalagh/plancher-backend/internal/repo"
)

// idempotencyStore keeps Idempotency-Key results in the idempotency table.
type idempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func (s *idempotencyStore) Lookup(ctx context.Context, actor, scope, key string, now time.Time) (string, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, actor, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.ResourceID, true, nil
}

// Remember does not fail on duplicates: a concurrent request with the same key won.
func (s *idempotencyStore) Remember(ctx context.Context, actor, scope, key, resourceID string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.db, actor, scope, key, resourceID, status, s.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		log.Ctx(ctx).Warn().Str("scope", scope).Str("resource_id", resourceID).Msg("idempotency key already recorded")
		return nil
	}
	return err
}
