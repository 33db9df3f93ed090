// Package handlers exposes the REST API of the admin and employee portals and
// of the public assistant.
//
// Handlers are transport-thin: they bind and validate input, read the caller
// identity stored by middleware.RequireRole, call an application service, and
// translate the result (or a service error, see failErr) into JSON.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/zalagh/plancher-backend/internal/auth"
	"github.com/zalagh/plancher-backend/internal/domain"
	"github.com/zalagh/plancher-backend/internal/http/middleware"
	"github.com/zalagh/plancher-backend/internal/repo"
	"github.com/zalagh/plancher-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// AuthService authenticates accounts and resolves the current user.
type AuthService interface {
	LoginAdmin(ctx context.Context, email, password string) (*services.Session, error)
	LoginEmployee(ctx context.Context, email, password string) (*services.Session, error)
	// Login tries the admin table first, then employees.
	Login(ctx context.Context, email, password string) (*services.Session, error)
	Admin(ctx context.Context, id string) (*domain.Admin, error)
	Employee(ctx context.Context, id uint) (*domain.Employee, error)
	Admins(ctx context.Context) ([]domain.Admin, error)
}

// EmployeeService manages employee accounts.
type EmployeeService interface {
	Create(ctx context.Context, adminID string, in services.NewEmployee) (*domain.Employee, error)
	List(ctx context.Context) ([]domain.Employee, error)
}

// DemandeService covers the demande workflow.
type DemandeService interface {
	CreateFromPortal(ctx context.Context, in services.NewDemande, plan io.Reader, planName string) (*domain.Demande, error)
	CreateFromAssistant(ctx context.Context, in services.NewDemande) (*domain.Demande, error)
	Get(ctx context.Context, id uint) (*domain.Demande, error)
	List(ctx context.Context) ([]domain.Demande, error)
	// Version returns the row count and latest update, used for ETags.
	Version(ctx context.Context) (int64, *time.Time, error)
	GeneratePDF(ctx context.Context, id uint) (string, error)
	UploadSigned(ctx context.Context, id uint, by domain.Role, payload string) (string, error)
	Export(ctx context.Context, from, to string) ([]services.ExportItem, error)
}

// NotificationService covers sector broadcasts and their reply threads.
type NotificationService interface {
	Broadcast(ctx context.Context, b services.Broadcast) (int, error)
	ListForAdmin(ctx context.Context, sector string, limit int) ([]repo.NotificationView, error)
	ListForEmployee(ctx context.Context, employeeID uint) ([]repo.NotificationView, error)
	MarkRead(ctx context.Context, employeeID uint, id string) error
	MarkTaken(ctx context.Context, employeeID uint, id string) error
	AdminReplies(ctx context.Context, id string) ([]repo.ReplyView, error)
	EmployeeReplies(ctx context.Context, employeeID uint, id string) ([]repo.ReplyView, error)
	AdminReply(ctx context.Context, adminID, id, body string) (*domain.NotificationReply, error)
	EmployeeReply(ctx context.Context, employeeID uint, id, body string) (*domain.NotificationReply, error)
}

// MessageService covers direct messages between accounts.
type MessageService interface {
	Contacts(ctx context.Context, me domain.Party) ([]services.Contact, error)
	Conversation(ctx context.Context, me domain.Party, contactID string) ([]repo.MessageView, error)
	Send(ctx context.Context, me domain.Party, recipientID, content string) (*domain.Message, error)
}

// AssistantService proxies the generative model.
type AssistantService interface {
	Vision(ctx context.Context, prompt string, images []services.Image) (*services.VisionResult, error)
	UploadPlan(ctx context.Context, r io.Reader, name string) (string, error)
	Chat(ctx context.Context, messages []services.ChatMessage, vc *services.VisionContext) (*services.Reply, error)
	AdminChat(ctx context.Context, adminID, baseURL string, messages []services.ChatMessage) (*services.Reply, error)
}

//
// Handler wiring
//

// Services bundles the dependencies of Handlers.
type Services struct {
	Auth          AuthService
	Employees     EmployeeService
	Demandes      DemandeService
	Notifications NotificationService
	Messages      MessageService
	Assistant     AssistantService
}

// Handlers groups every HTTP endpoint of the API.
type Handlers struct {
	authSvc   AuthService
	empSvc    EmployeeService
	demSvc    DemandeService
	notifSvc  NotificationService
	msgSvc    MessageService
	assistSvc AssistantService
}

// New constructs Handlers bound to s and registers the custom binding tags.
func New(s Services) *Handlers {
	RegisterValidators()
	return &Handlers{
		authSvc:   s.Auth,
		empSvc:    s.Employees,
		demSvc:    s.Demandes,
		notifSvc:  s.Notifications,
		msgSvc:    s.Messages,
		assistSvc: s.Assistant,
	}
}

//
// Identity
//

// identity returns the caller stored by middleware.RequireRole. Routes
// mounted without it answer 401.
func identity(c *gin.Context) (auth.Identity, bool) {
	id, found := middleware.IdentityFrom(c)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing token")
	}
	return id, found
}

//
// Validation
//

var registerOnce sync.Once

// RegisterValidators adds the `secteur` tag to gin's validator and reports
// field errors under their JSON (or form) name. Safe to call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, isValidator := binding.Validator.Engine().(*validator.Validate)
		if !isValidator {
			return
		}
		if err := configureValidator(v); err != nil {
			log.Error().Err(err).Msg("register request validators")
		}
	})
}

func configureValidator(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v.RegisterValidation("secteur", func(fl validator.FieldLevel) bool {
		_, valid := domain.ParseSector(fl.Field().String())
		return valid
	})
}

// bindError turns a binding failure into a 400 message. Field errors name the
// offending JSON field.
func bindError(c *gin.Context, err error, fallback string) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		msg := "invalid " + fe.Field()
		if fe.Tag() == "required" {
			msg = fe.Field() + " required"
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msg)
		return
	}
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, fallback)
}
