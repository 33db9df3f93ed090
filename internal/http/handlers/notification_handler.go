// Notification HTTP handlers.
//
// Admin side:
//   - POST /admin/notify                       (broadcast to a sector)
//   - GET  /admin/notifications                (recent, optional sector filter)
//   - GET  /admin/notifications/{id}/replies   (thread)
//   - POST /admin/notifications/{id}/replies   (answer)
//
// Employee side, scoped to the caller's own notifications:
//   - GET  /employee/notifications
//   - POST /employee/notifications/{id}/read
//   - POST /employee/notifications/{id}/take
//   - GET  /employee/notifications/{id}/replies
//   - POST /employee/notifications/{id}/replies
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zalagh/plancher-backend/internal/services"
)

//
// DTOs
//

// BroadcastRequest is the payload of POST /admin/notify. BodyHTML is
// sanitized before storage.
type BroadcastRequest struct {
	Secteur  string `json:"secteur"   binding:"required,secteur" enums:"finance,chantier,production"`
	Title    string `json:"title"     binding:"required" example:"Livraison demain"`
	BodyHTML string `json:"body_html" binding:"required" example:"<p>Camion prévu à 8h.</p>"`
}

// BroadcastResponse reports how many employees were notified.
type BroadcastResponse struct {
	OK    bool `json:"ok"    example:"true"`
	Count int  `json:"count" example:"3"`
}

// AdminNotificationsQuery filters GET /admin/notifications.
type AdminNotificationsQuery struct {
	Secteur string `form:"secteur" binding:"omitempty,secteur"`
	Limit   int    `form:"limit"   binding:"omitempty,min=1,max=1000"`
}

// ReplyRequest is the payload of both reply endpoints.
type ReplyRequest struct {
	Body string `json:"body" binding:"required" example:"Bien reçu."`
}

//
// Admin side
//

// Broadcast godoc
// @ID          broadcastNotification
// @Summary     Notify a sector
// @Description Creates one notification per employee of the sector.
// @Tags        Notifications
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.BroadcastRequest  true  "Notification"
// @Success     200   {object}  handlers.BroadcastResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Router      /admin/notify [post]
func (h *Handlers) Broadcast(c *gin.Context) {
	who, found := identity(c)
	if !found {
		return
	}
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "secteur, title and body_html required")
		return
	}
	n, err := h.notifSvc.Broadcast(c.Request.Context(), services.Broadcast{
		Sector:   req.Secteur,
		Title:    req.Title,
		BodyHTML: req.BodyHTML,
		AdminID:  who.AdminID,
	})
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, BroadcastResponse{OK: true, Count: n})
}

// ListAdminNotifications godoc
// @ID          listAdminNotifications
// @Summary     Recent notifications (admin)
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Param       secteur  query     string  false  "Sector filter"  Enums(finance, chantier, production)
// @Param       limit    query     int     false  "Maximum rows"   minimum(1) maximum(1000) default(200)
// @Success     200      {array}   repo.NotificationView
// @Failure     400      {object}  handlers.ErrorResponse
// @Router      /admin/notifications [get]
func (h *Handlers) ListAdminNotifications(c *gin.Context) {
	var q AdminNotificationsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err, "invalid query")
		return
	}
	list, err := h.notifSvc.ListForAdmin(c.Request.Context(), q.Secteur, q.Limit)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, nonNil(list))
}

// AdminReplies godoc
// @ID          adminReplies
// @Summary     Reply thread (admin)
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Notification ID"  format(uuid)
// @Success     200  {array}   repo.ReplyView
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /admin/notifications/{id}/replies [get]
func (h *Handlers) AdminReplies(c *gin.Context) {
	list, err := h.notifSvc.AdminReplies(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, nonNil(list))
}

// AdminReply godoc
// @ID          adminReply
// @Summary     Answer a notification (admin)
// @Tags        Notifications
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string  true  "Notification ID"  format(uuid)
// @Param       body  body      handlers.ReplyRequest  true  "Reply"
// @Success     201   {object}  handlers.OKResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse
// @Router      /admin/notifications/{id}/replies [post]
func (h *Handlers) AdminReply(c *gin.Context) {
	who, found := identity(c)
	if !found {
		return
	}
	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "body required")
		return
	}
	if _, err := h.notifSvc.AdminReply(c.Request.Context(), who.AdminID, c.Param("id"), req.Body); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	done(c, http.StatusCreated)
}

//
// Employee side
//

// ListEmployeeNotifications godoc
// @ID          listEmployeeNotifications
// @Summary     My notifications
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   repo.NotificationView
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /employee/notifications [get]
func (h *Handlers) ListEmployeeNotifications(c *gin.Context) {
	who, found := identity(c)
	if !found {
		return
	}
	list, err := h.notifSvc.ListForEmployee(c.Request.Context(), who.EmployeeID)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, nonNil(list))
}

// MarkRead godoc
// @ID          markNotificationRead
// @Summary     Mark a notification read
// @Description Repeatable; the latest call wins.
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Notification ID"  format(uuid)
// @Success     200  {object}  handlers.OKResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /employee/notifications/{id}/read [post]
func (h *Handlers) MarkRead(c *gin.Context) {
	who, found := identity(c)
	if !found {
		return
	}
	if err := h.notifSvc.MarkRead(c.Request.Context(), who.EmployeeID, c.Param("id")); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	done(c, http.StatusOK)
}

// MarkTaken godoc
// @ID          markNotificationTaken
// @Summary     Take charge of a notification
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Notification ID"  format(uuid)
// @Success     200  {object}  handlers.OKResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /employee/notifications/{id}/take [post]
func (h *Handlers) MarkTaken(c *gin.Context) {
	who, found := identity(c)
	if !found {
		return
	}
	if err := h.notifSvc.MarkTaken(c.Request.Context(), who.EmployeeID, c.Param("id")); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	done(c, http.StatusOK)
}

// EmployeeReplies godoc
// @ID          employeeReplies
// @Summary     Reply thread (employee)
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Notification ID"  format(uuid)
// @Success     200  {array}   repo.ReplyView
// @Failure     404  {object}  handlers.ErrorResponse "Not found or not yours"
// @Router      /employee/notifications/{id}/replies [get]
func (h *Handlers) EmployeeReplies(c *gin.Context) {
	who, found := identity(c)
	if !found {
		return
	}
	list, err := h.notifSvc.EmployeeReplies(c.Request.Context(), who.EmployeeID, c.Param("id"))
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, nonNil(list))
}

// EmployeeReply godoc
// @ID          employeeReply
// @Summary     Answer a notification (employee)
// @Tags        Notifications
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string  true  "Notification ID"  format(uuid)
// @Param       body  body      handlers.ReplyRequest  true  "Reply"
// @Success     201   {object}  handlers.OKResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse "Not found or not yours"
// @Router      /employee/notifications/{id}/replies [post]
func (h *Handlers) EmployeeReply(c *gin.Context) {
	who, found := identity(c)
	if !found {
		return
	}
	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "body required")
		return
	}
	if _, err := h.notifSvc.EmployeeReply(c.Request.Context(), who.EmployeeID, c.Param("id"), req.Body); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	done(c, http.StatusCreated)
}

// nonNil keeps empty lists serialized as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
