package handlers

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/zalagh/plancher-backend/internal/services"
)

func TestVision_Multipart(t *testing.T) {
	var (
		gotPrompt string
		gotImages []services.Image
	)
	assist := stubAssistant{
		vision: func(_ context.Context, prompt string, images []services.Image) (*services.VisionResult, error) {
			if len(images) == 0 {
				return nil, &services.ValidationError{Msg: "at least one image required"}
			}
			gotPrompt, gotImages = prompt, images
			vol, cost := 12.5, 1875.0
			return &services.VisionResult{Text: "ok", VolumeM3: &vol, PricePerM3: 150, EstimatedCostDH: &cost, PlanJPG: "/planjpg/1_a.png"}, nil
		},
	}
	h := New(Services{Assistant: assist})
	r := testRouter(nil)
	r.POST("/api/ai/vision", h.Vision)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, img := range []struct{ name, mime, data string }{{"a.png", "image/png", "png"}, {"b.jpg", "image/jpeg", "jpg"}} {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="images"; filename="`+img.name+`"`)
		hdr.Set("Content-Type", img.mime)
		pw, _ := mw.CreatePart(hdr)
		_, _ = pw.Write([]byte(img.data))
	}
	_ = mw.WriteField("prompt", "Estime le volume")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/ai/vision", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var res services.VisionResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if w.Code != http.StatusOK || res.EstimatedCostDH == nil || *res.EstimatedCostDH != 1875 {
		t.Fatalf("vision: %d %s", w.Code, w.Body.String())
	}
	if gotPrompt != "Estime le volume" || len(gotImages) != 2 {
		t.Fatalf("service input: %q %d images", gotPrompt, len(gotImages))
	}
	if gotImages[0].MIMEType != "image/png" || gotImages[1].Name != "b.jpg" || string(gotImages[1].Data) != "jpg" {
		t.Fatalf("images: %+v", gotImages)
	}

	// Not multipart at all.
	expectError(t, doJSON(r, http.MethodPost, "/api/ai/vision", `{}`), http.StatusBadRequest, ErrCodeBadRequest, "at least one image required")

	// Multipart without images reaches the service, which rejects it.
	body, ct := multipartBody(t, map[string]string{"prompt": "x"}, "", "", nil)
	req = httptest.NewRequest(http.MethodPost, "/api/ai/vision", body)
	req.Header.Set("Content-Type", ct)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest, "at least one image required")
}

func TestChat(t *testing.T) {
	keyed := true
	var gotCtx *services.VisionContext
	assist := stubAssistant{
		chat: func(_ context.Context, msgs []services.ChatMessage, vc *services.VisionContext) (*services.Reply, error) {
			if !keyed {
				return nil, services.ErrMissingAPIKey
			}
			if len(msgs) == 0 {
				return nil, &services.ValidationError{Msg: "messages array required"}
			}
			gotCtx = vc
			return &services.Reply{Text: "Bonjour"}, nil
		},
	}
	h := New(Services{Assistant: assist})
	r := testRouter(nil)
	r.POST("/api/ai/chat", h.Chat)

	w := doJSON(r, http.MethodPost, "/api/ai/chat", `{"messages":[{"role":"user","content":"Salut"}],"visionContext":{"text":"dalle","volume_m3":3}}`)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"text":"Bonjour"}` {
		t.Fatalf("chat: %d %s", w.Code, w.Body.String())
	}
	if gotCtx == nil || gotCtx.VolumeM3 == nil || *gotCtx.VolumeM3 != 3 {
		t.Fatalf("vision context = %+v", gotCtx)
	}

	expectError(t, doJSON(r, http.MethodPost, "/api/ai/chat", `{"messages":"hi"}`), http.StatusBadRequest, ErrCodeBadRequest, "messages array required")
	expectError(t, doJSON(r, http.MethodPost, "/api/ai/chat", `{}`), http.StatusBadRequest, ErrCodeBadRequest, "messages array required")

	keyed = false
	expectError(t, doJSON(r, http.MethodPost, "/api/ai/chat", `{"messages":[{"role":"user","content":"Salut"}]}`),
		http.StatusInternalServerError, ErrCodeMissingAPIKey, "Missing GEMINI_API_KEY")
}

func TestAdminChat_BaseURL(t *testing.T) {
	var gotAdmin, gotBase string
	assist := stubAssistant{
		adminChat: func(_ context.Context, adminID, baseURL string, _ []services.ChatMessage) (*services.Reply, error) {
			gotAdmin, gotBase = adminID, baseURL
			return &services.Reply{Text: "lien", HTML: `<a href="` + baseURL + `/pdfs/12.pdf">`, Intent: "quote_link"}, nil
		},
	}
	h := New(Services{Assistant: assist})
	r := testRouter(&adminIdentity)
	r.POST("/api/admin/ai/chat", h.AdminChat)

	send := func(mut func(*http.Request)) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/ai/chat", strings.NewReader(`{"messages":[{"role":"user","content":"devis 12"}]}`))
		req.Header.Set("Content-Type", "application/json")
		if mut != nil {
			mut(req)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := send(nil)
	if w.Code != http.StatusOK || gotAdmin != "a-1" || gotBase != "http://example.com" {
		t.Fatalf("admin chat: %d %q %q", w.Code, gotAdmin, gotBase)
	}
	send(func(req *http.Request) { req.Header.Set("X-Forwarded-Proto", "https") })
	if gotBase != "https://example.com" {
		t.Fatalf("forwarded base = %q", gotBase)
	}
	send(func(req *http.Request) { req.TLS = &tls.ConnectionState{}; req.Host = "plancher.ma" })
	if gotBase != "https://plancher.ma" {
		t.Fatalf("tls base = %q", gotBase)
	}
	send(func(req *http.Request) { req.Header.Set("X-Forwarded-Proto", "gopher") })
	if gotBase != "http://example.com" {
		t.Fatalf("unknown proto must be ignored, got %q", gotBase)
	}

	r2 := testRouter(nil)
	r2.POST("/api/admin/ai/chat", h.AdminChat)
	expectError(t, doJSON(r2, http.MethodPost, "/api/admin/ai/chat", `{"messages":[]}`), http.StatusUnauthorized, ErrCodeUnauthorized, "missing token")
}

func TestUploadPlan(t *testing.T) {
	assist := stubAssistant{
		uploadPlan: func(_ context.Context, rd io.Reader, name string) (string, error) {
			if !strings.HasSuffix(name, ".png") && !strings.HasSuffix(name, ".jpg") {
				return "", &services.ValidationError{Msg: "unsupported plan format"}
			}
			data, _ := io.ReadAll(rd)
			if string(data) != "plan" {
				t.Fatalf("data = %q", data)
			}
			return "/planjpg/1718000000000_" + name, nil
		},
	}
	h := New(Services{Assistant: assist})
	r := testRouter(nil)
	r.POST("/api/plan/upload", h.UploadPlan)

	upload := func(field, name string) *httptest.ResponseRecorder {
		body, ct := multipartBody(t, nil, field, name, []byte("plan"))
		req := httptest.NewRequest(http.MethodPost, "/api/plan/upload", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := upload("plan", "rdc.png")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"plan_jpg":"/planjpg/1718000000000_rdc.png"}` {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	expectError(t, upload("file", "rdc.png"), http.StatusBadRequest, ErrCodeBadRequest, "plan file required")
	expectError(t, upload("plan", "rdc.gif"), http.StatusBadRequest, ErrCodeBadRequest, "unsupported plan format")
}
