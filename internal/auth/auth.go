// Package auth issues and verifies the bearer tokens used by both portals.
//
// A single Verify call checks signature and expiry and, when roles are given,
// that the token's role is one of them. The result is an Identity tagged with
// its Role so callers never have to guess which id field is meaningful.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/zalagh/plancher-backend/internal/domain"
)

var (
	// ErrMissingToken means no bearer token was supplied.
	ErrMissingToken = errors.New("missing token")
	// ErrInvalidToken covers bad signatures, malformed tokens, and expiry.
	ErrInvalidToken = errors.New("invalid token")
	// ErrForbidden means the token is valid but its role is not allowed.
	ErrForbidden = errors.New("forbidden")
)

// Identity is the authenticated caller. Exactly one of AdminID and
// EmployeeID is meaningful, selected by Role.
type Identity struct {
	Role       domain.Role
	AdminID    string
	EmployeeID uint
	Email      string
	Sector     domain.Sector
}

// Party returns the messaging party for the identity.
func (i Identity) Party() domain.Party {
	if i.Role == domain.RoleAdmin {
		return domain.AdminParty(i.AdminID)
	}
	return domain.EmployeeParty(i.EmployeeID)
}

// ActorID is a stable "role:id" key used for rate limiting and idempotency.
func (i Identity) ActorID() string {
	if i.Role == domain.RoleAdmin {
		return "admin:" + i.AdminID
	}
	return "employee:" + strconv.FormatUint(uint64(i.EmployeeID), 10)
}

// Claims is the token payload. Field names match tokens issued by earlier
// versions of the portals.
type Claims struct {
	Role       domain.Role   `json:"role,omitempty"`
	AdminID    string        `json:"adminId,omitempty"`
	EmployeeID uint          `json:"employeeId,omitempty"`
	Email      string        `json:"email,omitempty"`
	Secteur    domain.Sector `json:"secteur,omitempty"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 tokens with a shared secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens returns a Tokens using secret. A non-positive ttl defaults to 8h.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for id.
func (t *Tokens) Issue(id Identity) (string, error) {
	now := t.now()
	c := Claims{
		Role:    id.Role,
		Email:   id.Email,
		Secteur: id.Sector,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	switch id.Role {
	case domain.RoleAdmin:
		c.AdminID = id.AdminID
		c.Subject = id.AdminID
	case domain.RoleEmployee:
		c.EmployeeID = id.EmployeeID
		c.Subject = strconv.FormatUint(uint64(id.EmployeeID), 10)
	default:
		return "", fmt.Errorf("issue token: unknown role %q", id.Role)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses raw and returns its Identity. When required is non-empty the
// identity's role must be one of them, otherwise ErrForbidden is returned.
func (t *Tokens) Verify(raw string, required ...domain.Role) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, ErrMissingToken
	}
	var c Claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := Identity{Role: c.Role, AdminID: c.AdminID, EmployeeID: c.EmployeeID, Email: c.Email, Sector: c.Secteur}
	if id.Role == "" {
		// Tokens minted before roles were added carry only employeeId.
		switch {
		case c.EmployeeID != 0:
			id.Role = domain.RoleEmployee
		case c.AdminID != "":
			id.Role = domain.RoleAdmin
		}
	}
	switch id.Role {
	case domain.RoleAdmin:
		if id.AdminID == "" {
			return Identity{}, ErrForbidden
		}
	case domain.RoleEmployee:
		if id.EmployeeID == 0 {
			return Identity{}, ErrForbidden
		}
	default:
		return Identity{}, ErrForbidden
	}

	if len(required) == 0 {
		return id, nil
	}
	for _, r := range required {
		if id.Role == r {
			return id, nil
		}
	}
	return Identity{}, ErrForbidden
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
