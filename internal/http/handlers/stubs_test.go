package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zalagh/plancher-backend/internal/auth"
	"github.com/zalagh/plancher-backend/internal/domain"
	"github.com/zalagh/plancher-backend/internal/http/middleware"
	"github.com/zalagh/plancher-backend/internal/repo"
	"github.com/zalagh/plancher-backend/internal/services"
)

// ---------- func-field service stubs ----------

type stubAuth struct {
	loginAdmin    func(context.Context, string, string) (*services.Session, error)
	loginEmployee func(context.Context, string, string) (*services.Session, error)
	login         func(context.Context, string, string) (*services.Session, error)
	admin         func(context.Context, string) (*domain.Admin, error)
	employee      func(context.Context, uint) (*domain.Employee, error)
	admins        func(context.Context) ([]domain.Admin, error)
}

func (s stubAuth) LoginAdmin(ctx context.Context, e, p string) (*services.Session, error) {
	return s.loginAdmin(ctx, e, p)
}

func (s stubAuth) LoginEmployee(ctx context.Context, e, p string) (*services.Session, error) {
	return s.loginEmployee(ctx, e, p)
}

func (s stubAuth) Login(ctx context.Context, e, p string) (*services.Session, error) {
	return s.login(ctx, e, p)
}

func (s stubAuth) Admin(ctx context.Context, id string) (*domain.Admin, error) {
	return s.admin(ctx, id)
}

func (s stubAuth) Employee(ctx context.Context, id uint) (*domain.Employee, error) {
	return s.employee(ctx, id)
}

func (s stubAuth) Admins(ctx context.Context) ([]domain.Admin, error) {
	if s.admins == nil {
		return nil, nil
	}
	return s.admins(ctx)
}

type stubEmployees struct {
	create func(context.Context, string, services.NewEmployee) (*domain.Employee, error)
	list   func(context.Context) ([]domain.Employee, error)
}

func (s stubEmployees) Create(ctx context.Context, adminID string, in services.NewEmployee) (*domain.Employee, error) {
	return s.create(ctx, adminID, in)
}

func (s stubEmployees) List(ctx context.Context) ([]domain.Employee, error) {
	return s.list(ctx)
}

type stubDemandes struct {
	createPortal    func(context.Context, services.NewDemande, io.Reader, string) (*domain.Demande, error)
	createAssistant func(context.Context, services.NewDemande) (*domain.Demande, error)
	get             func(context.Context, uint) (*domain.Demande, error)
	list            func(context.Context) ([]domain.Demande, error)
	version         func(context.Context) (int64, *time.Time, error)
	generatePDF     func(context.Context, uint) (string, error)
	uploadSigned    func(context.Context, uint, domain.Role, string) (string, error)
	export          func(context.Context, string, string) ([]services.ExportItem, error)
}

func (s stubDemandes) CreateFromPortal(ctx context.Context, in services.NewDemande, plan io.Reader, name string) (*domain.Demande, error) {
	return s.createPortal(ctx, in, plan, name)
}

func (s stubDemandes) CreateFromAssistant(ctx context.Context, in services.NewDemande) (*domain.Demande, error) {
	return s.createAssistant(ctx, in)
}

func (s stubDemandes) Get(ctx context.Context, id uint) (*domain.Demande, error) {
	if s.get == nil {
		return nil, services.ErrDemandeNotFound
	}
	return s.get(ctx, id)
}

func (s stubDemandes) List(ctx context.Context) ([]domain.Demande, error) {
	return s.list(ctx)
}

func (s stubDemandes) Version(ctx context.Context) (int64, *time.Time, error) {
	if s.version == nil {
		return 0, nil, nil
	}
	return s.version(ctx)
}

func (s stubDemandes) GeneratePDF(ctx context.Context, id uint) (string, error) {
	return s.generatePDF(ctx, id)
}

func (s stubDemandes) UploadSigned(ctx context.Context, id uint, by domain.Role, payload string) (string, error) {
	return s.uploadSigned(ctx, id, by, payload)
}

func (s stubDemandes) Export(ctx context.Context, from, to string) ([]services.ExportItem, error) {
	return s.export(ctx, from, to)
}

type stubNotifications struct {
	broadcast       func(context.Context, services.Broadcast) (int, error)
	listAdmin       func(context.Context, string, int) ([]repo.NotificationView, error)
	listEmployee    func(context.Context, uint) ([]repo.NotificationView, error)
	markRead        func(context.Context, uint, string) error
	markTaken       func(context.Context, uint, string) error
	adminReplies    func(context.Context, string) ([]repo.ReplyView, error)
	employeeReplies func(context.Context, uint, string) ([]repo.ReplyView, error)
	adminReply      func(context.Context, string, string, string) (*domain.NotificationReply, error)
	employeeReply   func(context.Context, uint, string, string) (*domain.NotificationReply, error)
}

func (s stubNotifications) Broadcast(ctx context.Context, b services.Broadcast) (int, error) {
	return s.broadcast(ctx, b)
}

func (s stubNotifications) ListForAdmin(ctx context.Context, sector string, limit int) ([]repo.NotificationView, error) {
	return s.listAdmin(ctx, sector, limit)
}

func (s stubNotifications) ListForEmployee(ctx context.Context, id uint) ([]repo.NotificationView, error) {
	return s.listEmployee(ctx, id)
}

func (s stubNotifications) MarkRead(ctx context.Context, emp uint, id string) error {
	return s.markRead(ctx, emp, id)
}

func (s stubNotifications) MarkTaken(ctx context.Context, emp uint, id string) error {
	return s.markTaken(ctx, emp, id)
}

func (s stubNotifications) AdminReplies(ctx context.Context, id string) ([]repo.ReplyView, error) {
	return s.adminReplies(ctx, id)
}

func (s stubNotifications) EmployeeReplies(ctx context.Context, emp uint, id string) ([]repo.ReplyView, error) {
	return s.employeeReplies(ctx, emp, id)
}

func (s stubNotifications) AdminReply(ctx context.Context, adminID, id, body string) (*domain.NotificationReply, error) {
	return s.adminReply(ctx, adminID, id, body)
}

func (s stubNotifications) EmployeeReply(ctx context.Context, emp uint, id, body string) (*domain.NotificationReply, error) {
	return s.employeeReply(ctx, emp, id, body)
}

type stubMessages struct {
	contacts     func(context.Context, domain.Party) ([]services.Contact, error)
	conversation func(context.Context, domain.Party, string) ([]repo.MessageView, error)
	send         func(context.Context, domain.Party, string, string) (*domain.Message, error)
}

func (s stubMessages) Contacts(ctx context.Context, me domain.Party) ([]services.Contact, error) {
	return s.contacts(ctx, me)
}

func (s stubMessages) Conversation(ctx context.Context, me domain.Party, contact string) ([]repo.MessageView, error) {
	return s.conversation(ctx, me, contact)
}

func (s stubMessages) Send(ctx context.Context, me domain.Party, to, content string) (*domain.Message, error) {
	return s.send(ctx, me, to, content)
}

type stubAssistant struct {
	vision     func(context.Context, string, []services.Image) (*services.VisionResult, error)
	uploadPlan func(context.Context, io.Reader, string) (string, error)
	chat       func(context.Context, []services.ChatMessage, *services.VisionContext) (*services.Reply, error)
	adminChat  func(context.Context, string, string, []services.ChatMessage) (*services.Reply, error)
}

func (s stubAssistant) Vision(ctx context.Context, prompt string, images []services.Image) (*services.VisionResult, error) {
	return s.vision(ctx, prompt, images)
}

func (s stubAssistant) UploadPlan(ctx context.Context, r io.Reader, name string) (string, error) {
	return s.uploadPlan(ctx, r, name)
}

func (s stubAssistant) Chat(ctx context.Context, m []services.ChatMessage, vc *services.VisionContext) (*services.Reply, error) {
	return s.chat(ctx, m, vc)
}

func (s stubAssistant) AdminChat(ctx context.Context, adminID, baseURL string, m []services.ChatMessage) (*services.Reply, error) {
	return s.adminChat(ctx, adminID, baseURL, m)
}

// ---------- router helpers ----------

var (
	adminIdentity    = auth.Identity{Role: domain.RoleAdmin, AdminID: "a-1", Email: "khalid@gmail.com"}
	employeeIdentity = auth.Identity{Role: domain.RoleEmployee, EmployeeID: 7, Sector: domain.SectorFinance}
)

// testRouter returns an engine whose requests carry who as the caller. A nil
// who leaves the request anonymous.
func testRouter(who *auth.Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(func(c *gin.Context) {
		if who != nil {
			middleware.WithIdentity(c, *who)
		}
		c.Next()
	})
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != nil {
		if s, isString := body.(string); isString {
			rdr = bytes.NewBufferString(s)
		} else {
			b, _ := json.Marshal(body)
			rdr = bytes.NewReader(b)
		}
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("error body: %v (%s)", err, w.Body.String())
	}
	if er.RequestID == "" {
		t.Fatalf("request_id missing from %s", w.Body.String())
	}
	return er
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code, msg string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (%s)", w.Code, status, w.Body.String())
	}
	er := decodeError(t, w)
	if er.Code != code || (msg != "" && er.Message != msg) {
		t.Fatalf("error = %+v, want %s %q", er, code, msg)
	}
}

func strPtr(s string) *string { return &s }

// memIdemStore is an in-memory middleware.IdempotencyStore.
type memIdemStore struct {
	mu      sync.Mutex
	records map[string]string
}

func (m *memIdemStore) Lookup(_ context.Context, actor, scope, key string, _ time.Time) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, found := m.records[actor+"|"+scope+"|"+key]
	return id, found, nil
}

func (m *memIdemStore) Remember(_ context.Context, actor, scope, key, resourceID string, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[actor+"|"+scope+"|"+key] = resourceID
	return nil
}
