package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/zalagh/plancher-backend/internal/domain"
	"github.com/zalagh/plancher-backend/internal/repo"
)

// NewEmployee is the input of EmployeeService.Create.
type NewEmployee struct {
	Nom      string
	Prenom   string
	Secteur  string
	Email    string
	Password string
}

// EmployeeService manages employee accounts. Only admins call it.
type EmployeeService struct {
	DB *gorm.DB
}

// Create validates in and inserts an employee owned by adminID.
func (s *EmployeeService) Create(ctx context.Context, adminID string, in NewEmployee) (*domain.Employee, error) {
	ctx, span := otel.Tracer("services/EmployeeService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("admin.id", adminID)),
	)
	defer span.End()

	nom, prenom := strings.TrimSpace(in.Nom), strings.TrimSpace(in.Prenom)
	if nom == "" || prenom == "" || strings.TrimSpace(in.Secteur) == "" {
		return nil, invalid("nom, prenom, secteur required")
	}
	sector, ok := domain.ParseSector(in.Secteur)
	if !ok {
		return nil, invalid("invalid secteur")
	}

	e := &domain.Employee{Nom: nom, Prenom: prenom, Secteur: sector}
	if email := strings.ToLower(strings.TrimSpace(in.Email)); email != "" {
		e.Email = &email
	}
	if in.Password != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(in.Password), BcryptCost)
		if err != nil {
			return nil, err
		}
		hash := string(b)
		e.PasswordHash = &hash
	}
	if adminID != "" {
		e.AdminRef = &adminID
	}

	if err := repo.CreateEmployee(ctx, s.DB, e); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return e, nil
}

// List returns all employees, newest first.
func (s *EmployeeService) List(ctx context.Context) ([]domain.Employee, error) {
	return repo.ListEmployees(ctx, s.DB)
}
