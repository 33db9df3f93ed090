package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zalagh/plancher-backend/internal/domain"
	"github.com/zalagh/plancher-backend/internal/http/middleware"
	"github.com/zalagh/plancher-backend/internal/services"
)

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("field: %v", err)
		}
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatalf("file: %v", err)
		}
		_, _ = fw.Write(data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestParsePrice(t *testing.T) {
	cases := map[string]float64{"1500": 1500, " 1500.5 ": 1500.5, "1500,25": 1500.25}
	for in, want := range cases {
		got, err := parsePrice(in)
		if err != nil || got == nil || *got != want {
			t.Fatalf("parsePrice(%q) = %v, %v", in, got, err)
		}
	}
	if got, err := parsePrice("  "); got != nil || err != nil {
		t.Fatalf("empty must be missing, got %v %v", got, err)
	}
	if _, err := parsePrice("abc"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCreateDemande_Multipart(t *testing.T) {
	var (
		gotIn   services.NewDemande
		gotPlan []byte
		gotName string
	)
	dem := stubDemandes{
		createPortal: func(_ context.Context, in services.NewDemande, plan io.Reader, name string) (*domain.Demande, error) {
			if in.Prix == nil {
				return nil, &services.ValidationError{Msg: "nom, prenom, type_projet, prix required"}
			}
			gotIn, gotName = in, name
			if plan != nil {
				gotPlan, _ = io.ReadAll(plan)
			}
			return &domain.Demande{ID: 4, Nom: in.Nom, Prix: *in.Prix, Statut: domain.StatusInProgress}, nil
		},
	}
	h := New(Services{Demandes: dem})
	r := testRouter(&employeeIdentity)
	r.POST("/api/demandes", h.CreateDemande)

	body, ct := multipartBody(t, map[string]string{
		"nom": "Alaoui", "prenom": "Hind", "type_projet": "dalle", "prix": "900", "telephone": "0600",
	}, "plan_jpg", "plan.png", []byte("png-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/demandes", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"statut":"encours"`) {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	if gotIn.Nom != "Alaoui" || gotIn.Telephone != "0600" || *gotIn.Prix != 900 || gotName != "plan.png" || string(gotPlan) != "png-bytes" {
		t.Fatalf("service input: %+v %q %q", gotIn, gotName, gotPlan)
	}

	// No plan, missing price.
	body, ct = multipartBody(t, map[string]string{"nom": "A", "prenom": "B", "type_projet": "dalle"}, "", "", nil)
	req = httptest.NewRequest(http.MethodPost, "/api/demandes", body)
	req.Header.Set("Content-Type", ct)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest, "nom, prenom, type_projet, prix required")

	body, ct = multipartBody(t, map[string]string{"nom": "A", "prenom": "B", "type_projet": "dalle", "prix": "cher"}, "", "", nil)
	req = httptest.NewRequest(http.MethodPost, "/api/demandes", body)
	req.Header.Set("Content-Type", ct)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest, "invalid prix")
}

func TestRequestQuote_AndReplay(t *testing.T) {
	creates := 0
	stored := map[uint]*domain.Demande{}
	dem := stubDemandes{
		createAssistant: func(_ context.Context, in services.NewDemande) (*domain.Demande, error) {
			if in.PlanJPG != "" && !strings.HasPrefix(in.PlanJPG, "/planjpg/") {
				return nil, &services.ValidationError{Msg: "invalid plan_jpg path"}
			}
			creates++
			d := &domain.Demande{ID: uint(20 + creates), Nom: in.Nom, PlanJPG: strPtr(in.PlanJPG)}
			stored[d.ID] = d
			return d, nil
		},
		get: func(_ context.Context, id uint) (*domain.Demande, error) {
			if d, found := stored[id]; found {
				return d, nil
			}
			return nil, services.ErrDemandeNotFound
		},
	}
	h := New(Services{Demandes: dem})
	store := &memIdemStore{records: map[string]string{}}
	r := testRouter(nil)
	r.POST("/api/ai/request-quote", middleware.Idempotency(middleware.IdempotencyOptions{}, store), h.RequestQuote)

	prix := 1875.0
	payload, _ := json.Marshal(RequestQuoteRequest{Nom: "A", Prenom: "B", TypeProjet: "dalle", Prix: &prix, PlanJPG: "/planjpg/1_plan.jpg"})
	send := func(key string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/ai/request-quote", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if key != "" {
			req.Header.Set(middleware.HeaderIdempotencyKey, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := send("q-1", payload)
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"iddemande":21`) {
		t.Fatalf("first: %d %s", w.Code, w.Body.String())
	}
	w = send("q-1", payload)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"iddemande":21`) || w.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("replay: %d %s", w.Code, w.Body.String())
	}
	if creates != 1 {
		t.Fatalf("replay created a demande, creates=%d", creates)
	}

	bad, _ := json.Marshal(RequestQuoteRequest{Nom: "A", Prenom: "B", TypeProjet: "dalle", Prix: &prix, PlanJPG: "/etc/passwd"})
	expectError(t, send("", bad), http.StatusBadRequest, ErrCodeBadRequest, "invalid plan_jpg path")
	expectError(t, send("", []byte("{")), http.StatusBadRequest, ErrCodeBadRequest, msgInvalidBody)
}

func TestListAdminDemandes_ETag(t *testing.T) {
	ts := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	lists := 0
	dem := stubDemandes{
		version: func(context.Context) (int64, *time.Time, error) { return 3, &ts, nil },
		list: func(context.Context) ([]domain.Demande, error) {
			lists++
			return []domain.Demande{{ID: 3}, {ID: 2}, {ID: 1}}, nil
		},
	}
	h := New(Services{Demandes: dem})
	r := testRouter(&adminIdentity)
	r.GET("/api/admin/demandes", h.ListAdminDemandes)
	r.GET("/api/demandes", h.ListDemandes)

	w := doJSON(r, http.MethodGet, "/api/admin/demandes", nil)
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || !strings.HasPrefix(etag, `W/"demandes:3:`) {
		t.Fatalf("list: %d etag=%q", w.Code, etag)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/demandes", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified || lists != 1 {
		t.Fatalf("conditional: %d lists=%d", w.Code, lists)
	}

	ts = ts.Add(time.Second)
	req = httptest.NewRequest(http.MethodGet, "/api/admin/demandes", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("stale etag must refetch, got %d", w.Code)
	}

	w = doJSON(r, http.MethodGet, "/api/demandes", nil)
	if w.Code != http.StatusOK || w.Header().Get("ETag") != "" {
		t.Fatalf("employee list: %d %v", w.Code, w.Header())
	}
}

func TestGeneratePDF(t *testing.T) {
	dem := stubDemandes{
		generatePDF: func(_ context.Context, id uint) (string, error) {
			switch id {
			case 12:
				return "/pdfs/12.pdf", nil
			case 13:
				return "", errors.New("disk full")
			}
			return "", services.ErrDemandeNotFound
		},
	}
	h := New(Services{Demandes: dem})
	r := testRouter(&employeeIdentity)
	r.POST("/api/demandes/:id/pdf", h.GeneratePDF)

	w := doJSON(r, http.MethodPost, "/api/demandes/12/pdf", nil)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"pdf":"/pdfs/12.pdf"}` {
		t.Fatalf("pdf: %d %s", w.Code, w.Body.String())
	}
	expectError(t, doJSON(r, http.MethodPost, "/api/demandes/99/pdf", nil), http.StatusNotFound, ErrCodeNotFound, "Demande introuvable")
	expectError(t, doJSON(r, http.MethodPost, "/api/demandes/abc/pdf", nil), http.StatusBadRequest, ErrCodeBadRequest, "invalid id")
	expectError(t, doJSON(r, http.MethodPost, "/api/demandes/13/pdf", nil), http.StatusInternalServerError, ErrCodePDFFailed, "disk full")
}

func TestUploadSignedPDF_RoleDecidesFile(t *testing.T) {
	var roles []domain.Role
	dem := stubDemandes{
		uploadSigned: func(_ context.Context, id uint, by domain.Role, payload string) (string, error) {
			if payload == "" {
				return "", &services.ValidationError{Msg: "missing base64"}
			}
			if id != 5 {
				return "", services.ErrDemandeNotFound
			}
			roles = append(roles, by)
			if by == domain.RoleAdmin {
				return "/pdfsigne/5-uploaded.pdf", nil
			}
			return "/pdfsigne/5-signed-by-emp.pdf", nil
		},
	}
	h := New(Services{Demandes: dem})

	ra := testRouter(&adminIdentity)
	ra.POST("/api/admin/demandes/:id/upload-pdf", h.UploadSignedPDF)
	w := doJSON(ra, http.MethodPost, "/api/admin/demandes/5/upload-pdf", UploadSignedRequest{Base64: "JVBERi0="})
	var resp UploadSignedResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusOK || resp.PDFSigne != "/pdfsigne/5-uploaded.pdf" || resp.Statut != domain.StatusDelivered {
		t.Fatalf("admin upload: %d %s", w.Code, w.Body.String())
	}

	re := testRouter(&employeeIdentity)
	re.POST("/api/demandes/:id/upload-pdf", h.UploadSignedPDF)
	w = doJSON(re, http.MethodPost, "/api/demandes/5/upload-pdf", UploadSignedRequest{Base64: "JVBERi0="})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "5-signed-by-emp.pdf") {
		t.Fatalf("employee upload: %d %s", w.Code, w.Body.String())
	}
	if len(roles) != 2 || roles[0] != domain.RoleAdmin || roles[1] != domain.RoleEmployee {
		t.Fatalf("roles = %v", roles)
	}

	expectError(t, doJSON(re, http.MethodPost, "/api/demandes/5/upload-pdf", `{}`), http.StatusBadRequest, ErrCodeBadRequest, "missing base64")
	expectError(t, doJSON(re, http.MethodPost, "/api/demandes/6/upload-pdf", UploadSignedRequest{Base64: "AA=="}), http.StatusNotFound, ErrCodeNotFound, "")
}

func TestExport(t *testing.T) {
	dem := stubDemandes{
		export: func(_ context.Context, from, to string) ([]services.ExportItem, error) {
			if from == "2025-07-01" {
				return nil, nil
			}
			return []services.ExportItem{{ID: 1, PDFPath: "/pdfs/1.pdf"}}, nil
		},
	}
	h := New(Services{Demandes: dem})
	r := testRouter(&adminIdentity)
	r.GET("/api/admin/export", h.Export)

	w := doJSON(r, http.MethodGet, "/api/admin/export?from=2025-06-01&to=2025-06-30", nil)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"items":[{"iddemande":1,"pdf_path":"/pdfs/1.pdf"}]}` {
		t.Fatalf("export: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(r, http.MethodGet, "/api/admin/export?from=2025-07-01&to=2025-07-31", nil)
	if strings.TrimSpace(w.Body.String()) != `{"items":[]}` {
		t.Fatalf("empty export: %s", w.Body.String())
	}
	expectError(t, doJSON(r, http.MethodGet, "/api/admin/export?from=2025-06-01", nil),
		http.StatusBadRequest, ErrCodeBadRequest, "from and to (YYYY-MM-DD) required")
}
