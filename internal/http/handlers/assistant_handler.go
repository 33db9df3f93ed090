// Assistant HTTP handlers.
//
//   - POST /ai/vision        (public, multipart `images` 1..8 + optional `prompt`)
//   - POST /ai/chat          (public chat, optional vision context)
//   - POST /admin/ai/chat    (admin chat with quote-link and notify intents)
//   - POST /plan/upload      (public, multipart `plan`)
//
// Every assistant call answers 500 "Missing GEMINI_API_KEY" when no key is
// configured.
package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zalagh/plancher-backend/internal/services"
)

//
// DTOs
//

// ChatRequest is the payload of both chat endpoints. VisionContext is only
// read by the public chat.
type ChatRequest struct {
	Messages      []services.ChatMessage  `json:"messages"`
	VisionContext *services.VisionContext `json:"visionContext,omitempty"`
}

// PlanUploadResponse is returned by POST /plan/upload.
type PlanUploadResponse struct {
	PlanJPG string `json:"plan_jpg" example:"/planjpg/1718000000000_plan.jpg"`
}

//
// Helpers
//

// requestBaseURL rebuilds the public origin of the request for absolute
// links, honoring X-Forwarded-Proto set by a reverse proxy.
func requestBaseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if p := strings.TrimSpace(c.GetHeader("X-Forwarded-Proto")); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + c.Request.Host
}

//
// Handlers
//

// Vision godoc
// @ID          aiVision
// @Summary     Estimate concrete volume from plan images
// @Description Stores the images under /planjpg and asks the model for a volume; cost is volume × 150 DH.
// @Tags        Assistant
// @Accept      multipart/form-data
// @Produce     json
// @Param       images  formData  file    true   "Plan images (1 to 8)"
// @Param       prompt  formData  string  false  "Custom prompt"
// @Success     200  {object}  services.VisionResult
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse "Missing key or model failure"
// @Router      /ai/vision [post]
func (h *Handlers) Vision(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "at least one image required")
		return
	}
	files := form.File["images"]
	images := make([]services.Image, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable image")
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable image")
			return
		}
		images = append(images, services.Image{
			Name:     fh.Filename,
			MIMEType: fh.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	res, err := h.assistSvc.Vision(c.Request.Context(), c.PostForm("prompt"), images)
	if err != nil {
		failErr(c, err, ErrCodeAIFailed)
		return
	}
	ok(c, http.StatusOK, res)
}

// Chat godoc
// @ID          aiChat
// @Summary     Public assistant chat
// @Tags        Assistant
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.ChatRequest  true  "Conversation"
// @Success     200   {object}  services.Reply
// @Failure     400   {object}  handlers.ErrorResponse "messages array required"
// @Failure     500   {object}  handlers.ErrorResponse
// @Router      /ai/chat [post]
func (h *Handlers) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "messages array required")
		return
	}
	reply, err := h.assistSvc.Chat(c.Request.Context(), req.Messages, req.VisionContext)
	if err != nil {
		failErr(c, err, ErrCodeAIFailed)
		return
	}
	ok(c, http.StatusOK, reply)
}

// AdminChat godoc
// @ID          aiAdminChat
// @Summary     Admin assistant chat
// @Description Answers quote-link and notify requests itself (text and html); anything else
// @Description goes to the model with business statistics.
// @Tags        Assistant
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.ChatRequest  true  "Conversation"
// @Success     200   {object}  services.Reply
// @Failure     400   {object}  handlers.ErrorResponse "messages array required"
// @Failure     500   {object}  handlers.ErrorResponse
// @Router      /admin/ai/chat [post]
func (h *Handlers) AdminChat(c *gin.Context) {
	who, found := identity(c)
	if !found {
		return
	}
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "messages array required")
		return
	}
	reply, err := h.assistSvc.AdminChat(c.Request.Context(), who.AdminID, requestBaseURL(c), req.Messages)
	if err != nil {
		failErr(c, err, ErrCodeAIFailed)
		return
	}
	ok(c, http.StatusOK, reply)
}

// UploadPlan godoc
// @ID          uploadPlan
// @Summary     Upload a plan image
// @Tags        Assistant
// @Accept      multipart/form-data
// @Produce     json
// @Param       plan  formData  file  true  "Plan image (jpg, jpeg or png)"
// @Success     200   {object}  handlers.PlanUploadResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Router      /plan/upload [post]
func (h *Handlers) UploadPlan(c *gin.Context) {
	fh, err := c.FormFile("plan")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "plan file required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "plan file required")
		return
	}
	defer f.Close()

	p, err := h.assistSvc.UploadPlan(c.Request.Context(), f, fh.Filename)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, PlanUploadResponse{PlanJPG: p})
}
