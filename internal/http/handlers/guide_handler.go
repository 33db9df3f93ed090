package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zalagh/plancher-backend/internal/guide"
)

// GuideStepsResponse is the tour of one page.
type GuideStepsResponse struct {
	Page  string       `json:"page"  example:"/admin.html"`
	Steps []guide.Step `json:"steps"`
	// Message is set when the page has no tour.
	Message string `json:"message,omitempty"`
}

// GuideTransitionRequest applies one event to a persisted widget state.
// Present lists the step targets found on the page; omit it when every
// target exists.
type GuideTransitionRequest struct {
	Page    string      `json:"page"  example:"/admin.html"`
	State   guide.State `json:"state"`
	Event   guide.Event `json:"event" binding:"required" enums:"start,next,previous,cancel,stop,toggle,restore"`
	Present []string    `json:"present,omitempty"`
}

// GuideTransitionResponse is the next state and the effects to apply, in order.
type GuideTransitionResponse struct {
	State   guide.State    `json:"state"`
	Effects []guide.Effect `json:"effects"`
}

// GuideSteps godoc
// @ID          guideSteps
// @Summary     Guided tour of a page
// @Tags        Guide
// @Produce     json
// @Param       page  query     string  false  "Page path, e.g. /admin.html (default: home)"
// @Success     200   {object}  handlers.GuideStepsResponse
// @Router      /guide/steps [get]
func (h *Handlers) GuideSteps(c *gin.Context) {
	page := c.Query("page")
	resp := GuideStepsResponse{Page: page, Steps: guide.Steps(page)}
	if len(resp.Steps) == 0 {
		resp.Message = guide.NoGuideMessage
	}
	ok(c, http.StatusOK, resp)
}

// GuideTransition godoc
// @ID          guideTransition
// @Summary     Advance the guided tour
// @Tags        Guide
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.GuideTransitionRequest  true  "State and event"
// @Success     200   {object}  handlers.GuideTransitionResponse
// @Failure     400   {object}  handlers.ErrorResponse "Unknown event"
// @Router      /guide/transition [post]
func (h *Handlers) GuideTransition(c *gin.Context) {
	var req GuideTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, msgInvalidBody)
		return
	}
	if !req.Event.Valid() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown event")
		return
	}

	var present func(string) bool
	if req.Present != nil {
		set := make(map[string]struct{}, len(req.Present))
		for _, t := range req.Present {
			set[t] = struct{}{}
		}
		present = func(target string) bool {
			_, found := set[target]
			return found
		}
	}
	next, effects := guide.Transition(req.State, req.Event, guide.Steps(req.Page), present)
	ok(c, http.StatusOK, GuideTransitionResponse{State: next, Effects: effects})
}
