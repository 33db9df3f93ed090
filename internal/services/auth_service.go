// Package services – AuthService
//
// This file implements password logins for admins and employees, the /me
// lookups, and the bootstrap that seeds admin accounts. Passwords are bcrypt
// hashes (cost 10); tokens are issued by auth.Tokens.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/zalagh/plancher-backend/internal/auth"
	"github.com/zalagh/plancher-backend/internal/domain"
	"github.com/zalagh/plancher-backend/internal/repo"
)

// BcryptCost is the work factor for every stored password.
const BcryptCost = 10

// UserInfo is the public profile returned with a token.
type UserInfo struct {
	ID      any           `json:"id"`
	Nom     string        `json:"nom"`
	Prenom  string        `json:"prenom"`
	Email   *string       `json:"email"`
	Secteur domain.Sector `json:"secteur,omitempty"`
}

// Session is the result of a successful login.
type Session struct {
	Token string
	Role  domain.Role
	User  UserInfo
}

// AuthService authenticates accounts against the database.
type AuthService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Tokens signs the issued JWTs.
	Tokens *auth.Tokens
}

// LoginAdmin checks an admin's email and password.
func (s *AuthService) LoginAdmin(ctx context.Context, email, password string) (*Session, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "LoginAdmin")
	defer span.End()

	if err := requireCredentials(email, password); err != nil {
		return nil, err
	}
	a, err := repo.GetAdminByEmail(ctx, s.DB, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !checkPassword(a.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.adminSession(a)
}

// LoginEmployee checks an employee's email and password. Employees created
// without a password cannot log in.
func (s *AuthService) LoginEmployee(ctx context.Context, email, password string) (*Session, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "LoginEmployee")
	defer span.End()

	if err := requireCredentials(email, password); err != nil {
		return nil, err
	}
	e, err := repo.GetEmployeeByEmail(ctx, s.DB, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if e.PasswordHash == nil || !checkPassword(*e.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.employeeSession(e)
}

// Login tries the admin table first and falls back to employees.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	sess, err := s.LoginAdmin(ctx, email, password)
	if err == nil || !errors.Is(err, ErrInvalidCredentials) {
		return sess, err
	}
	return s.LoginEmployee(ctx, email, password)
}

// Admin returns the admin behind a verified identity.
func (s *AuthService) Admin(ctx context.Context, id string) (*domain.Admin, error) {
	a, err := repo.GetAdmin(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	return a, err
}

// Employee returns the employee behind a verified identity.
func (s *AuthService) Employee(ctx context.Context, id uint) (*domain.Employee, error) {
	e, err := repo.GetEmployee(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	return e, err
}

// Admins lists every admin; used as the contact directory.
func (s *AuthService) Admins(ctx context.Context) ([]domain.Admin, error) {
	return repo.ListAdmins(ctx, s.DB)
}

func (s *AuthService) adminSession(a *domain.Admin) (*Session, error) {
	tok, err := s.Tokens.Issue(auth.Identity{Role: domain.RoleAdmin, AdminID: a.ID, Email: a.Email})
	if err != nil {
		return nil, err
	}
	email := a.Email
	return &Session{
		Token: tok,
		Role:  domain.RoleAdmin,
		User:  UserInfo{ID: a.ID, Nom: a.Nom, Prenom: a.Prenom, Email: &email},
	}, nil
}

func (s *AuthService) employeeSession(e *domain.Employee) (*Session, error) {
	id := auth.Identity{Role: domain.RoleEmployee, EmployeeID: e.ID, Sector: e.Secteur}
	if e.Email != nil {
		id.Email = *e.Email
	}
	tok, err := s.Tokens.Issue(id)
	if err != nil {
		return nil, err
	}
	return &Session{
		Token: tok,
		Role:  domain.RoleEmployee,
		User:  UserInfo{ID: e.ID, Nom: e.Nom, Prenom: e.Prenom, Email: e.Email, Secteur: e.Secteur},
	}, nil
}

func requireCredentials(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return invalid("email and password required")
	}
	return nil
}

func checkPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// SeedAdmins makes sure an admin exists for every email and gives
// defaultPassword to those whose hash is still empty. Existing passwords are
// never overwritten.
func SeedAdmins(ctx context.Context, db *gorm.DB, emails []string, defaultPassword string) error {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "SeedAdmins",
		trace.WithAttributes(attribute.Int("admins", len(emails))),
	)
	defer span.End()

	var hash string
	for _, email := range emails {
		nom, prenom := namesFromEmail(email)
		a, err := repo.EnsureAdmin(ctx, db, email, nom, prenom)
		if err != nil {
			return err
		}
		if a.PasswordHash != "" || defaultPassword == "" {
			continue
		}
		if hash == "" {
			b, err := bcrypt.GenerateFromPassword([]byte(defaultPassword), BcryptCost)
			if err != nil {
				return err
			}
			hash = string(b)
		}
		if err := repo.SetAdminPasswordHash(ctx, db, a.ID, hash); err != nil {
			return err
		}
		log.Info().Str("email", a.Email).Msg("seeded admin password")
	}
	return nil
}

// namesFromEmail derives display names for a seeded admin:
// "khalid@gmail.com" becomes ("Khalid", "Admin").
func namesFromEmail(email string) (nom, prenom string) {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	if local == "" {
		return "Admin", "Admin"
	}
	return strings.ToUpper(local[:1]) + local[1:], "Admin"
}
