// Direct message HTTP handlers.
//
// This file exposes the messaging endpoints shared by both portals:
//   - GET  /contacts                      (people the caller can write to)
//   - GET  /messages/{contactId}          (employee conversation)
//   - GET  /admin/messages/{contactId}    (admin conversation)
//   - POST /messages, POST /admin/messages (send)
//
// Accounts are addressed as "admin_<uuid>" or "employee_<id>"; a bare number
// names an employee. The sender is always the authenticated caller.
//
// Handlers are transport-thin:
//   - normalize content (line endings and excessive blank lines)
//   - delegate to MessageService, which checks the recipient exists
package handlers

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

//
// DTOs
//

// SendMessageRequest is the JSON payload for sending a direct message.
type SendMessageRequest struct {
	// RecipientID is a role-tagged account id.
	RecipientID string `json:"recipient_id" binding:"required" example:"admin_3f1c2a9e-8b7d-4e6f-9a1b-2c3d4e5f6a7b"`
	// Content is the message text. It must be non-empty after normalization.
	Content string `json:"content" binding:"required" example:"Le devis 12 est signé."`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

//
// Handlers
//

// Contacts godoc
// @ID          listContacts
// @Summary     List contacts
// @Description Admins and other employees for an employee; employees for an admin.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   services.Contact
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /contacts [get]
func (h *Handlers) Contacts(c *gin.Context) {
	who, found := identity(c)
	if !found {
		return
	}
	list, err := h.msgSvc.Contacts(c.Request.Context(), who.Party())
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, nonNil(list))
}

// Conversation godoc
// @ID          listConversation
// @Summary     Conversation with a contact
// @Description Oldest first. Also mounted for admins at /admin/messages/{contactId}.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       contactId  path      string  true  "Contact (admin_<uuid> or employee_<id>)"
// @Success     200        {array}   repo.MessageView
// @Failure     400        {object}  handlers.ErrorResponse "Malformed contact id"
// @Failure     401        {object}  handlers.ErrorResponse
// @Router      /messages/{contactId} [get]
func (h *Handlers) Conversation(c *gin.Context) {
	who, found := identity(c)
	if !found {
		return
	}
	list, err := h.msgSvc.Conversation(c.Request.Context(), who.Party(), c.Param("contactId"))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, nonNil(list))
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a direct message
// @Description Also mounted for admins at /admin/messages.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.SendMessageRequest  true  "Message"
// @Success     201   {object}  domain.Message
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse "Recipient not found"
// @Router      /messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	who, found := identity(c)
	if !found {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "recipient_id and content required")
		return
	}
	content := sanitizeContent(req.Content)
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "recipient_id and content required")
		return
	}
	m, err := h.msgSvc.Send(c.Request.Context(), who.Party(), req.RecipientID, content)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusCreated, m)
}
