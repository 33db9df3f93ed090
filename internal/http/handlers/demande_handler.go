// Demande HTTP handlers.
//
//   - POST /demandes                       (employee, multipart with optional plan)
//   - POST /ai/request-quote               (public assistant, JSON)
//   - GET  /demandes, GET /admin/demandes  (list; the admin list supports ETag)
//   - POST /demandes/{id}/pdf              (generate the quote PDF)
//   - POST /admin/demandes/{id}/upload-pdf (signed PDF from an admin)
//   - POST /demandes/{id}/upload-pdf       (signed PDF from an employee)
//   - GET  /admin/export                   (quote links over a date range)
//
// Both create endpoints honor Idempotency-Key: a replayed key returns the
// demande created by the first request with `Idempotency-Replayed: true`.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zalagh/plancher-backend/internal/domain"
	"github.com/zalagh/plancher-backend/internal/http/middleware"
	"github.com/zalagh/plancher-backend/internal/services"
)

//
// DTOs
//

// CreateDemandeForm is the multipart form of POST /demandes. The optional
// plan image is sent in the `plan_jpg` file field.
type CreateDemandeForm struct {
	Nom        string `form:"nom"         example:"Alaoui"`
	Prenom     string `form:"prenom"      example:"Hind"`
	Telephone  string `form:"telephone"   example:"0612345678"`
	TypeProjet string `form:"type_projet" example:"dalle"`
	Prix       string `form:"prix"        example:"1500"`
}

// RequestQuoteRequest is the JSON payload of POST /ai/request-quote. PlanJPG,
// when set, must be a path returned by /plan/upload or /ai/vision.
type RequestQuoteRequest struct {
	Nom        string   `json:"nom"         example:"Alaoui"`
	Prenom     string   `json:"prenom"      example:"Hind"`
	Telephone  string   `json:"telephone"   example:"0612345678"`
	TypeProjet string   `json:"type_projet" example:"dalle"`
	Prix       *float64 `json:"prix"        example:"1875"`
	PlanJPG    string   `json:"plan_jpg"    example:"/planjpg/1718000000000_plan.jpg"`
}

// UploadSignedRequest carries a signed PDF as base64.
type UploadSignedRequest struct {
	Base64 string `json:"base64" example:"JVBERi0xLjQK..."`
}

// PDFResponse is returned by POST /demandes/{id}/pdf.
type PDFResponse struct {
	PDF string `json:"pdf" example:"/pdfs/12.pdf"`
}

// UploadSignedResponse is returned by both signed-upload endpoints.
type UploadSignedResponse struct {
	PDFSigne string        `json:"pdf_signe" example:"/pdfsigne/12-uploaded.pdf"`
	Statut   domain.Status `json:"statut"    example:"livré"`
}

// ExportResponse lists demandes with a generated quote.
type ExportResponse struct {
	Items []services.ExportItem `json:"items"`
}

//
// Helpers
//

// demandeID parses the :id path parameter, answering 400 when malformed.
func demandeID(c *gin.Context) (uint, bool) {
	id, err := services.ParseID(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// replayDemande answers with the demande created by an earlier request that
// carried the same Idempotency-Key. It reports whether it wrote a response.
func (h *Handlers) replayDemande(c *gin.Context) bool {
	rid, replay := middleware.ReplayedResource(c)
	if !replay {
		return false
	}
	id, err := services.ParseID(rid)
	if err != nil {
		return false
	}
	prev, err := h.demSvc.Get(c.Request.Context(), id)
	if err != nil {
		return false
	}
	middleware.MarkReplayed(c)
	ok(c, http.StatusOK, prev)
	return true
}

func rememberDemande(c *gin.Context, d *domain.Demande) {
	middleware.RememberResource(c, strconv.FormatUint(uint64(d.ID), 10), http.StatusCreated)
}

// parsePrice accepts "1500", "1500.5" and "1500,5". Empty means missing.
func parsePrice(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

//
// Handlers
//

// CreateDemande godoc
// @ID          createDemande
// @Summary     Create a demande
// @Description Employee entry of a customer request. Status is always "encours".
// @Tags        Demandes
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header    string  false  "Idempotency key for safe retries"
// @Param       nom              formData  string  true   "Nom"
// @Param       prenom           formData  string  true   "Prénom"
// @Param       telephone        formData  string  false  "Téléphone"
// @Param       type_projet      formData  string  true   "Type de projet"
// @Param       prix             formData  number  true   "Prix (DH)"
// @Param       plan_jpg         formData  file    false  "Plan (jpg, jpeg or png)"
// @Success     201  {object}  domain.Demande
// @Success     200  {object}  domain.Demande "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /demandes [post]
func (h *Handlers) CreateDemande(c *gin.Context) {
	if h.replayDemande(c) {
		return
	}

	var form CreateDemandeForm
	if err := c.ShouldBind(&form); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid form")
		return
	}
	prix, err := parsePrice(form.Prix)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid prix")
		return
	}

	var (
		plan     io.Reader
		planName string
	)
	fh, err := c.FormFile("plan_jpg")
	switch {
	case err == nil:
		f, err := fh.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable plan_jpg")
			return
		}
		defer f.Close()
		plan, planName = f, fh.Filename
	case !errors.Is(err, http.ErrMissingFile):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid form")
		return
	}

	d, err := h.demSvc.CreateFromPortal(c.Request.Context(), services.NewDemande{
		Nom:        form.Nom,
		Prenom:     form.Prenom,
		Telephone:  form.Telephone,
		TypeProjet: form.TypeProjet,
		Prix:       prix,
	}, plan, planName)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	rememberDemande(c, d)
	ok(c, http.StatusCreated, d)
}

// RequestQuote godoc
// @ID          requestQuote
// @Summary     Request a quote from the assistant
// @Description Anonymous creation used by the public assistant after a vision estimate.
// @Tags        Assistant
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"
// @Param       body             body    handlers.RequestQuoteRequest  true  "Demande"
// @Success     201  {object}  domain.Demande
// @Success     200  {object}  domain.Demande "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse "Missing field or invalid plan_jpg path"
// @Router      /ai/request-quote [post]
func (h *Handlers) RequestQuote(c *gin.Context) {
	if h.replayDemande(c) {
		return
	}
	var req RequestQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgInvalidBody)
		return
	}
	d, err := h.demSvc.CreateFromAssistant(c.Request.Context(), services.NewDemande{
		Nom:        req.Nom,
		Prenom:     req.Prenom,
		Telephone:  req.Telephone,
		TypeProjet: req.TypeProjet,
		Prix:       req.Prix,
		PlanJPG:    req.PlanJPG,
	})
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	rememberDemande(c, d)
	ok(c, http.StatusCreated, d)
}

// ListDemandes godoc
// @ID          listDemandes
// @Summary     List demandes (employee)
// @Tags        Demandes
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   domain.Demande
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /demandes [get]
func (h *Handlers) ListDemandes(c *gin.Context) {
	list, err := h.demSvc.List(c.Request.Context())
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, list)
}

// ListAdminDemandes godoc
// @ID          listAdminDemandes
// @Summary     List demandes (admin)
// @Description Newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Demandes
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {array}   domain.Demande
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /admin/demandes [get]
func (h *Handlers) ListAdminDemandes(c *gin.Context) {
	ctx := c.Request.Context()

	// ETag pre-check (best effort).
	if count, maxTS, err := h.demSvc.Version(ctx); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"demandes:%d:%d"`, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	list, err := h.demSvc.List(ctx)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, list)
}

// GeneratePDF godoc
// @ID          generatePDF
// @Summary     Generate the quote PDF
// @Description Renders pdfs/{id}.pdf; regeneration overwrites the previous file.
// @Tags        Demandes
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      int  true  "Demande ID"
// @Success     200  {object}  handlers.PDFResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse "Demande not found"
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /demandes/{id}/pdf [post]
func (h *Handlers) GeneratePDF(c *gin.Context) {
	id, valid := demandeID(c)
	if !valid {
		return
	}
	p, err := h.demSvc.GeneratePDF(c.Request.Context(), id)
	if err != nil {
		failErr(c, err, ErrCodePDFFailed)
		return
	}
	ok(c, http.StatusOK, PDFResponse{PDF: p})
}

// UploadSignedPDF godoc
// @ID          uploadSignedPDF
// @Summary     Upload a signed PDF
// @Description Stores the decoded bytes and marks the demande delivered. Mounted for
// @Description admins at /admin/demandes/{id}/upload-pdf and for employees at
// @Description /demandes/{id}/upload-pdf; the stored file name depends on the role.
// @Tags        Demandes
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      int  true  "Demande ID"
// @Param       body  body      handlers.UploadSignedRequest  true  "Signed PDF"
// @Success     200   {object}  handlers.UploadSignedResponse
// @Failure     400   {object}  handlers.ErrorResponse "Missing or invalid base64"
// @Failure     404   {object}  handlers.ErrorResponse "Demande not found"
// @Router      /demandes/{id}/upload-pdf [post]
func (h *Handlers) UploadSignedPDF(c *gin.Context) {
	who, found := identity(c)
	if !found {
		return
	}
	id, valid := demandeID(c)
	if !valid {
		return
	}
	var req UploadSignedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "missing base64")
		return
	}
	p, err := h.demSvc.UploadSigned(c.Request.Context(), id, who.Role, req.Base64)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, UploadSignedResponse{PDFSigne: p, Statut: domain.StatusDelivered})
}

// Export godoc
// @ID          exportQuotes
// @Summary     Export quote links
// @Description Generates missing PDFs for demandes created in [from, to] and lists those with a quote.
// @Tags        Demandes
// @Produce     json
// @Security    BearerAuth
// @Param       from  query     string  true  "Start date (YYYY-MM-DD or DD/MM/YYYY)"
// @Param       to    query     string  true  "End date (inclusive)"
// @Success     200   {object}  handlers.ExportResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Router      /admin/export [get]
func (h *Handlers) Export(c *gin.Context) {
	from, to := strings.TrimSpace(c.Query("from")), strings.TrimSpace(c.Query("to"))
	if from == "" || to == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "from and to (YYYY-MM-DD) required")
		return
	}
	items, err := h.demSvc.Export(c.Request.Context(), from, to)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	if items == nil {
		items = []services.ExportItem{}
	}
	ok(c, http.StatusOK, ExportResponse{Items: items})
}
