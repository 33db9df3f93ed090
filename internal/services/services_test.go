package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/zalagh/plancher-backend/internal/ai"
	"github.com/zalagh/plancher-backend/internal/config"
	"github.com/zalagh/plancher-backend/internal/domain"
	"github.com/zalagh/plancher-backend/internal/repo"
	"github.com/zalagh/plancher-backend/internal/storage"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newFiles(t *testing.T) *storage.Layout {
	t.Helper()
	l := storage.New(config.StorageConfig{Root: t.TempDir()})
	if err := l.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	return l
}

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(b)
}

func seedAdmin(t *testing.T, db *gorm.DB, email, password string) *domain.Admin {
	t.Helper()
	a, err := repo.EnsureAdmin(context.Background(), db, email, "Lahlou", "Youssef")
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	if password != "" {
		if err := repo.SetAdminPasswordHash(context.Background(), db, a.ID, mustHash(t, password)); err != nil {
			t.Fatalf("set hash: %v", err)
		}
	}
	return a
}

func seedEmployee(t *testing.T, db *gorm.DB, nom string, sector domain.Sector) *domain.Employee {
	t.Helper()
	e := &domain.Employee{Nom: nom, Prenom: "P" + nom, Secteur: sector}
	if err := repo.CreateEmployee(context.Background(), db, e); err != nil {
		t.Fatalf("seed employee: %v", err)
	}
	return e
}

func seedDemande(t *testing.T, db *gorm.DB, nom string, prix float64, at time.Time) *domain.Demande {
	t.Helper()
	d := &domain.Demande{Nom: nom, Prenom: "P" + nom, TypeProjet: "dalle", Prix: prix, Statut: domain.StatusInProgress, CreatedAt: at, UpdatedAt: at}
	if err := repo.CreateDemande(context.Background(), db, d); err != nil {
		t.Fatalf("seed demande: %v", err)
	}
	return d
}

func price(v float64) *float64 { return &v }

// stubGen is an ai.Generator built from a func field.
type stubGen struct {
	GenerateFn func(ctx context.Context, contents []ai.Content) (string, error)
	calls      [][]ai.Content
}

func (s *stubGen) Generate(ctx context.Context, contents []ai.Content) (string, error) {
	s.calls = append(s.calls, contents)
	if s.GenerateFn == nil {
		return "ok", nil
	}
	return s.GenerateFn(ctx, contents)
}

func replyWith(text string) *stubGen {
	return &stubGen{GenerateFn: func(context.Context, []ai.Content) (string, error) { return text, nil }}
}
