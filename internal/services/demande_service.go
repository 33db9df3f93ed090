// Package services – DemandeService
//
// This file implements the demande workflow: creation from the employee
// portal and from the public assistant, quote PDF generation, signed PDF
// uploads (which flip the status to delivered), listing, and export of quote
// links over a date range.
//
// Quote generation for one demande is serialized by a per-id lock so that
// concurrent regenerations never interleave writes to pdfs/<id>.pdf.
// Generated and signed PDFs are mirrored to the archive when one is
// configured; mirror failures are logged and ignored.
package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/zalagh/plancher-backend/internal/domain"
	"github.com/zalagh/plancher-backend/internal/intent"
	"github.com/zalagh/plancher-backend/internal/quote"
	"github.com/zalagh/plancher-backend/internal/repo"
	"github.com/zalagh/plancher-backend/internal/storage"
)

// Demande origins, used as a metric label.
const (
	OriginPortal    = "portal"
	OriginAssistant = "assistant"
)

// NewDemande is the input shared by both creation paths. Prix is a pointer so
// that an explicit 0 is distinguishable from a missing field.
type NewDemande struct {
	Nom        string
	Prenom     string
	Telephone  string
	TypeProjet string
	Prix       *float64
	PlanJPG    string
}

// ExportItem is one demande with a generated quote.
type ExportItem struct {
	ID      uint   `json:"iddemande"`
	PDFPath string `json:"pdf_path"`
}

// DemandeService owns the demande lifecycle.
type DemandeService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Files resolves every on-disk location.
	Files *storage.Layout
	// Archive mirrors generated and signed PDFs. Nil disables mirroring.
	Archive storage.Archiver

	locks keyedLocks
}

// CreateFromPortal stores an employee-entered demande. plan may be nil; when
// present it is saved under uploads/ and must carry a jpg/jpeg/png name.
func (s *DemandeService) CreateFromPortal(ctx context.Context, in NewDemande, plan io.Reader, planName string) (*domain.Demande, error) {
	ctx, span := otel.Tracer("services/DemandeService").Start(ctx, "CreateFromPortal")
	defer span.End()

	if err := validateDemande(in); err != nil {
		return nil, err
	}
	var planPath string
	if plan != nil {
		p, err := s.Files.SaveUpload(plan, planName)
		if errors.Is(err, storage.ErrNotImage) {
			return nil, invalid(err.Error())
		}
		if err != nil {
			return nil, fmt.Errorf("save plan: %w", err)
		}
		planPath = p
	}
	return s.create(ctx, in, planPath, OriginPortal)
}

// CreateFromAssistant stores a demande submitted by the public assistant.
// A plan reference, when given, must point into /planjpg/.
func (s *DemandeService) CreateFromAssistant(ctx context.Context, in NewDemande) (*domain.Demande, error) {
	ctx, span := otel.Tracer("services/DemandeService").Start(ctx, "CreateFromAssistant")
	defer span.End()

	if err := validateDemande(in); err != nil {
		return nil, err
	}
	plan := strings.TrimSpace(in.PlanJPG)
	if plan != "" && !strings.HasPrefix(plan, storage.PrefixPlans) {
		return nil, invalid("invalid plan_jpg path")
	}
	return s.create(ctx, in, plan, OriginAssistant)
}

func validateDemande(in NewDemande) error {
	if strings.TrimSpace(in.Nom) == "" || strings.TrimSpace(in.Prenom) == "" ||
		strings.TrimSpace(in.TypeProjet) == "" || in.Prix == nil {
		return invalid("nom, prenom, type_projet, prix required")
	}
	if *in.Prix < 0 {
		return invalid("prix must be >= 0")
	}
	return nil
}

// create always starts a demande in progress: callers cannot choose a status.
func (s *DemandeService) create(ctx context.Context, in NewDemande, planPath, origin string) (*domain.Demande, error) {
	d := &domain.Demande{
		Nom:        strings.TrimSpace(in.Nom),
		Prenom:     strings.TrimSpace(in.Prenom),
		Telephone:  strings.TrimSpace(in.Telephone),
		TypeProjet: strings.TrimSpace(in.TypeProjet),
		Prix:       *in.Prix,
		Statut:     domain.StatusInProgress,
	}
	if planPath != "" {
		d.PlanJPG = &planPath
	}
	if err := repo.CreateDemande(ctx, s.DB, d); err != nil {
		return nil, err
	}
	demandesCreated.WithLabelValues(origin).Inc()
	return d, nil
}

// Get returns one demande.
func (s *DemandeService) Get(ctx context.Context, id uint) (*domain.Demande, error) {
	d, err := repo.GetDemande(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrDemandeNotFound
	}
	return d, err
}

// List returns every demande, newest first.
func (s *DemandeService) List(ctx context.Context) ([]domain.Demande, error) {
	return repo.ListDemandes(ctx, s.DB)
}

// Version returns the demande count and latest update time, used by the
// admin listing to compute an ETag.
func (s *DemandeService) Version(ctx context.Context) (int64, *time.Time, error) {
	return repo.DemandesStats(ctx, s.DB)
}

// GeneratePDF renders the quote of demande id into pdfs/<id>.pdf, records its
// public path, and returns it. Regeneration overwrites the previous file.
func (s *DemandeService) GeneratePDF(ctx context.Context, id uint) (string, error) {
	ctx, span := otel.Tracer("services/DemandeService").Start(ctx, "GeneratePDF",
		trace.WithAttributes(attribute.Int("demande.id", int(id))),
	)
	defer span.End()

	unlock := s.locks.lock(id)
	defer unlock()

	d, err := repo.GetDemande(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrDemandeNotFound
	}
	if err != nil {
		return "", err
	}

	data := quote.Data{
		ID:         d.ID,
		Nom:        d.Nom,
		Prenom:     d.Prenom,
		Telephone:  d.Telephone,
		TypeProjet: d.TypeProjet,
		Statut:     string(d.Statut),
		Prix:       d.Prix,
		LogoPath:   s.Files.LogoPath(),
	}
	if d.PlanJPG != nil {
		if p, ok := s.Files.ResolvePublic(*d.PlanJPG); ok {
			data.PlanPath = p
		}
	}

	disk, public := s.Files.QuoteFile(id)
	pages, err := quote.RenderFile(data, disk)
	quotesRendered.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.Int("pdf.pages", pages))

	if err := repo.SetDemandePDFPath(ctx, s.DB, id, public); err != nil {
		return "", err
	}
	storage.MirrorBestEffort(ctx, s.Archive, strings.TrimPrefix(public, "/"), disk)
	return public, nil
}

// UploadSigned stores the base64-decoded bytes as the signed PDF of demande
// id and marks it delivered. The file name depends on the uploader role. The
// payload is not checked to be a PDF.
func (s *DemandeService) UploadSigned(ctx context.Context, id uint, by domain.Role, payload string) (string, error) {
	ctx, span := otel.Tracer("services/DemandeService").Start(ctx, "UploadSigned",
		trace.WithAttributes(
			attribute.Int("demande.id", int(id)),
			attribute.String("uploader", string(by)),
		),
	)
	defer span.End()

	if strings.TrimSpace(payload) == "" {
		return "", invalid("missing base64")
	}
	data, err := decodeBase64(payload)
	if err != nil {
		return "", invalid("invalid base64")
	}
	if _, err := repo.GetDemande(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrDemandeNotFound
		}
		return "", err
	}

	suffix := storage.SuffixEmployeeUpload
	if by == domain.RoleAdmin {
		suffix = storage.SuffixAdminUpload
	}
	disk, public := s.Files.SignedFile(id, suffix)
	if err := storage.WriteFile(disk, data); err != nil {
		return "", err
	}
	if err := repo.MarkDemandeSigned(ctx, s.DB, id, public); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrDemandeNotFound
		}
		return "", err
	}
	signedUploads.WithLabelValues(string(by)).Inc()
	storage.MirrorBestEffort(ctx, s.Archive, strings.TrimPrefix(public, "/"), disk)
	return public, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// Export parses an inclusive [from, to] range of calendar days
// (YYYY-MM-DD or DD/MM/YYYY), generates every missing quote in it, and
// returns the demandes that have one, oldest first.
func (s *DemandeService) Export(ctx context.Context, from, to string) ([]ExportItem, error) {
	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		return nil, invalid("from and to (YYYY-MM-DD) required")
	}
	f, ok1 := intent.ParseDate(from)
	t, ok2 := intent.ParseDate(to)
	if !ok1 || !ok2 {
		return nil, invalid("from and to must be dates (YYYY-MM-DD)")
	}
	return s.QuoteLinks(ctx, intent.Range{From: f, To: t})
}

// QuoteLinks is Export for an already parsed range.
func (s *DemandeService) QuoteLinks(ctx context.Context, r intent.Range) ([]ExportItem, error) {
	ctx, span := otel.Tracer("services/DemandeService").Start(ctx, "QuoteLinks",
		trace.WithAttributes(attribute.String("range", r.Label())),
	)
	defer span.End()

	rows, err := repo.ListDemandesBetween(ctx, s.DB, r.From, r.To.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	out := make([]ExportItem, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		d := rows[i]
		path := ""
		if d.PDFPath != nil {
			path = *d.PDFPath
		}
		if path == "" {
			p, err := s.GeneratePDF(ctx, d.ID)
			if err != nil {
				logger(ctx).Warn().Err(err).Uint("demande_id", d.ID).Msg("quote generation failed during export")
				continue
			}
			path = p
		}
		out = append(out, ExportItem{ID: d.ID, PDFPath: path})
	}
	return out, nil
}

// keyedLocks hands out one mutex per demande id and forgets it once no
// goroutine holds or waits for it.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[uint]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func (k *keyedLocks) lock(id uint) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[uint]*refLock)
	}
	l := k.locks[id]
	if l == nil {
		l = &refLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

// ParseID parses a demande id path segment.
func ParseID(s string) (uint, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil || n == 0 {
		return 0, invalid("invalid id")
	}
	return uint(n), nil
}
