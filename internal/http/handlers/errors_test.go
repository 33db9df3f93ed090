package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/zalagh/plancher-backend/internal/services"
)

func TestFailErr_Mapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
		msg    string
	}{
		{&services.ValidationError{Msg: "nom, prenom, type_projet, prix required"}, http.StatusBadRequest, ErrCodeBadRequest, "nom, prenom, type_projet, prix required"},
		{fmt.Errorf("load: %w", services.ErrDemandeNotFound), http.StatusNotFound, ErrCodeNotFound, "Demande introuvable"},
		{services.ErrNotificationNotFound, http.StatusNotFound, ErrCodeNotFound, "Notification introuvable"},
		{services.ErrRecipientNotFound, http.StatusNotFound, ErrCodeNotFound, "recipient not found"},
		{services.ErrAccountNotFound, http.StatusNotFound, ErrCodeNotFound, "account not found"},
		{services.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeUnauthorized, "Identifiants invalides"},
		{services.ErrEmailTaken, http.StatusConflict, ErrCodeConflict, "email already in use"},
		{services.ErrMissingAPIKey, http.StatusInternalServerError, ErrCodeMissingAPIKey, "Missing GEMINI_API_KEY"},
		{fmt.Errorf("%w: 503", services.ErrAIFailed), http.StatusInternalServerError, ErrCodeAIFailed, "assistant request failed: 503"},
		{errors.New("db down"), http.StatusInternalServerError, ErrCodePDFFailed, "db down"},
	}
	for _, tc := range cases {
		r := testRouter(nil)
		err := tc.err
		r.GET("/x", func(c *gin.Context) { failErr(c, err, ErrCodePDFFailed) })
		w := doJSON(r, http.MethodGet, "/x", nil)
		expectError(t, w, tc.status, tc.code, tc.msg)
	}
}

func TestBindError_FieldNames(t *testing.T) {
	New(Services{})
	r := testRouter(nil)
	r.POST("/x", func(c *gin.Context) {
		var req BroadcastRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err, "fallback")
			return
		}
		ok(c, http.StatusOK, req)
	})

	cases := map[string]string{
		`{"title":"t","body_html":"b"}`:                       "secteur required",
		`{"secteur":"marketing","title":"t","body_html":"b"}`: "invalid secteur",
		`{"secteur":"finance","body_html":"b"}`:               "title required",
		`not json`:                                            "fallback",
	}
	for body, msg := range cases {
		w := doJSON(r, http.MethodPost, "/x", body)
		expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest, msg)
	}
	if w := doJSON(r, http.MethodPost, "/x", `{"secteur":"Chantier","title":"t","body_html":"b"}`); w.Code != http.StatusOK {
		t.Fatalf("valid sector rejected: %d %s", w.Code, w.Body.String())
	}
}
