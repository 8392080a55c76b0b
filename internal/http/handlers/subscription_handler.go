// Subscription HTTP handlers.
//
//   - GET    /subjects/{id}/subscribers/count
//   - POST   /subjects/{id}/subscriptions              (bulk create)
//   - PUT    /subjects/{id}/subscriptions/{user_id}    (ensure an existing user is subscribed)
//   - DELETE /subjects/{id}/subscriptions/{user_id}    (admin unsubscribe)
//   - POST   /subjects/{id}/subscriptions/{user_id}/pause
//   - POST   /subjects/{id}/subscriptions/{user_id}/reactivate
//   - GET    /subscriptions/{id}/audit
//   - POST   /subscribe                                (public signup)
//   - GET    /unsubscribe?user=&subject=               (confirmation page for emailed links)
//   - POST   /unsubscribe?user=&subject=               (public one-click target)
//   - POST   /bounces                                  (bounce webhook)
package handlers

import (
	"bytes"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/http/middleware"
	"github.com/tbourn/go-newsletter-backend/internal/utils"
)

// maxBulkUsers caps a single bulk subscription request.
const maxBulkUsers = 1000

// BulkSubscribeRequest is the JSON payload for bulk subscription creation.
type BulkSubscribeRequest struct {
	UserIDs []string `json:"user_ids" binding:"required,max=1000" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
}

// BulkSubscribeResponse lists the subscriptions this request created.
// Users that were already subscribed are not repeated.
type BulkSubscribeResponse struct {
	SubjectID uint                  `json:"subject_id"`
	Created   []domain.Subscription `json:"created"`
}

// SubscriberCountResponse is the active subscriber count of a subject.
type SubscriberCountResponse struct {
	SubjectID uint  `json:"subject_id"`
	Active    int64 `json:"active"`
}

// AuditResponse is the audit trail of one subscription, oldest first.
type AuditResponse struct {
	SubscriptionID string                     `json:"subscription_id"`
	Entries        []domain.SubscriptionAudit `json:"entries"`
}

// UnsubscribeResponse confirms a one-click unsubscribe.
type UnsubscribeResponse struct {
	SubjectID uint                      `json:"subject_id"`
	Status    domain.SubscriptionStatus `json:"status"`
}

// SignupRequest is the public signup payload.
type SignupRequest struct {
	Email     string `json:"email"      binding:"required,max=320" example:"reader@example.com"`
	Name      string `json:"name"       binding:"max=255" example:"Ada"`
	SubjectID uint   `json:"subject_id" binding:"required,min=1" example:"1"`
}

// SignupResponse reports the reader's subscription after signup.
type SignupResponse struct {
	SubjectID uint                      `json:"subject_id"`
	Status    domain.SubscriptionStatus `json:"status"`
	Created   bool                      `json:"created"`
}

// BounceRequest reports an undeliverable address.
type BounceRequest struct {
	Email   string `json:"email" binding:"required,max=320" example:"reader@example.com"`
	IssueID uint   `json:"issue_id" example:"42"`
}

// SubscriberCount godoc
// @ID          subscriberCount
// @Summary     Active subscriber count
// @Description Served from cache when available.
// @Tags        Subscriptions
// @Produce     json
// @Param       id   path  int  true  "Subject ID"  minimum(1)
// @Success     200  {object} handlers.SubscriberCountResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /subjects/{id}/subscribers/count [get]
func (h *Handlers) SubscriberCount(c *gin.Context) {
	subjectID, good := pathID(c, "id", "subject")
	if !good {
		return
	}
	n, err := h.subSvc.ActiveSubscriberCount(c.Request.Context(), subjectID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, SubscriberCountResponse{SubjectID: subjectID, Active: n})
}

// BulkSubscribe godoc
// @ID          bulkSubscribe
// @Summary     Subscribe users to a subject
// @Description Creates active subscriptions for users that have none. Each creation is audited.
// @Tags        Subscriptions
// @Accept      json
// @Produce     json
// @Param       id    path  int                            true  "Subject ID"  minimum(1)
// @Param       body  body  handlers.BulkSubscribeRequest  true  "User ids"
// @Success     201  {object} handlers.BulkSubscribeResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Subject not found"
// @Router      /subjects/{id}/subscriptions [post]
func (h *Handlers) BulkSubscribe(c *gin.Context) {
	subjectID, good := pathID(c, "id", "subject")
	if !good {
		return
	}
	var req BulkSubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_ids required (at most 1000)")
		return
	}
	if len(req.UserIDs) > maxBulkUsers {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_ids required (at most 1000)")
		return
	}
	created, err := h.subSvc.BulkCreateSubscription(c.Request.Context(), req.UserIDs, subjectID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, BulkSubscribeResponse{SubjectID: subjectID, Created: created})
}

// AdminUnsubscribe godoc
// @ID          adminUnsubscribe
// @Summary     Cancel a user's subscription
// @Tags        Subscriptions
// @Produce     json
// @Param       id       path  int     true  "Subject ID"  minimum(1)
// @Param       user_id  path  string  true  "User ID"     format(uuid)
// @Success     200  {object} domain.Subscription
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Subscription not found"
// @Router      /subjects/{id}/subscriptions/{user_id} [delete]
func (h *Handlers) AdminUnsubscribe(c *gin.Context) {
	subjectID, good := pathID(c, "id", "subject")
	if !good {
		return
	}
	sub, err := h.subSvc.Unsubscribe(c.Request.Context(), c.Param("user_id"), subjectID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, sub)
}

// EnsureSubscription godoc
// @ID          ensureSubscription
// @Summary     Ensure a user is subscribed
// @Description Creates an active subscription (audited as system_migration) when the user has none; an existing one is returned unchanged.
// @Tags        Subscriptions
// @Produce     json
// @Param       id       path  int     true  "Subject ID"  minimum(1)
// @Param       user_id  path  string  true  "User ID"     format(uuid)
// @Success     200  {object} domain.Subscription
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Subject not found"
// @Router      /subjects/{id}/subscriptions/{user_id} [put]
func (h *Handlers) EnsureSubscription(c *gin.Context) {
	subjectID, good := pathID(c, "id", "subject")
	if !good {
		return
	}
	sub, err := h.subSvc.EnsureSubscriptionExists(c.Request.Context(), c.Param("user_id"), subjectID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, sub)
}

// PauseSubscription godoc
// @ID          pauseSubscription
// @Summary     Pause a user's subscription
// @Tags        Subscriptions
// @Produce     json
// @Param       id       path  int     true  "Subject ID"  minimum(1)
// @Param       user_id  path  string  true  "User ID"     format(uuid)
// @Success     200  {object} domain.Subscription
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Subscription not found"
// @Failure     409  {object} handlers.ErrorResponse "Changed concurrently"
// @Router      /subjects/{id}/subscriptions/{user_id}/pause [post]
func (h *Handlers) PauseSubscription(c *gin.Context) {
	subjectID, good := pathID(c, "id", "subject")
	if !good {
		return
	}
	sub, err := h.subSvc.Pause(c.Request.Context(), c.Param("user_id"), subjectID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, sub)
}

// ReactivateSubscription godoc
// @ID          reactivateSubscription
// @Summary     Reactivate a paused or cancelled subscription
// @Tags        Subscriptions
// @Produce     json
// @Param       id       path  int     true  "Subject ID"  minimum(1)
// @Param       user_id  path  string  true  "User ID"     format(uuid)
// @Success     200  {object} domain.Subscription
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Subscription not found"
// @Failure     409  {object} handlers.ErrorResponse "Changed concurrently"
// @Router      /subjects/{id}/subscriptions/{user_id}/reactivate [post]
func (h *Handlers) ReactivateSubscription(c *gin.Context) {
	subjectID, good := pathID(c, "id", "subject")
	if !good {
		return
	}
	sub, err := h.subSvc.Reactivate(c.Request.Context(), c.Param("user_id"), subjectID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, sub)
}

// SubscriptionAudit godoc
// @ID          subscriptionAudit
// @Summary     Audit trail of a subscription
// @Tags        Subscriptions
// @Produce     json
// @Param       id   path  string  true  "Subscription ID"  format(uuid)
// @Success     200  {object} handlers.AuditResponse
// @Failure     404  {object} handlers.ErrorResponse "Subscription not found"
// @Router      /subscriptions/{id}/audit [get]
func (h *Handlers) SubscriptionAudit(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	entries, err := h.subSvc.ListAudit(c.Request.Context(), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, AuditResponse{SubscriptionID: id, Entries: entries})
}

// Subscribe godoc
// @ID          subscribe
// @Summary     Sign up for a newsletter
// @Description Creates the reader on first signup. Signing up again reactivates a paused or cancelled subscription.
// @Tags        Public
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.SignupRequest  true  "Signup"
// @Success     201  {object} handlers.SignupResponse "Subscription created"
// @Success     200  {object} handlers.SignupResponse "Already known"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Subject not found"
// @Router      /subscribe [post]
func (h *Handlers) Subscribe(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and subject_id are required")
		return
	}
	sub, created, err := h.subSvc.Signup(c.Request.Context(), req.Email, req.Name, req.SubjectID)
	if err != nil {
		serviceError(c, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	ok(c, code, SignupResponse{SubjectID: req.SubjectID, Status: sub.Status, Created: created})
}

// Unsubscribe godoc
// @ID          unsubscribe
// @Summary     One-click unsubscribe
// @Description Target of the List-Unsubscribe header (RFC 8058). Mail clients POST "List-Unsubscribe=One-Click" to the URL embedded in each email. Repeating the call is harmless.
// @Tags        Public
// @Accept      x-www-form-urlencoded
// @Produce     json
// @Param       user     query  string  true  "User ID"     format(uuid)
// @Param       subject  query  int     true  "Subject ID"  minimum(1)
// @Success     200  {object} handlers.UnsubscribeResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Subscription not found"
// @Router      /unsubscribe [post]
func (h *Handlers) Unsubscribe(c *gin.Context) {
	subjectID, good := utils.ParseID(c.Query("subject"))
	userID := strings.TrimSpace(c.Query("user"))
	if !good || userID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user and subject are required")
		return
	}
	sub, err := h.subSvc.Unsubscribe(c.Request.Context(), userID, subjectID)
	if err != nil {
		serviceError(c, err)
		return
	}
	middleware.LoggerFrom(c).Info().
		Uint("subject_id", subjectID).
		Str("via", c.PostForm("List-Unsubscribe")).
		Msg("one-click unsubscribe")
	ok(c, http.StatusOK, UnsubscribeResponse{SubjectID: subjectID, Status: sub.Status})
}

// unsubscribePage asks the reader to confirm. Link scanners follow GET
// links in mail, so the page itself changes nothing; the button POSTs back
// to the same URL.
var unsubscribePage = template.Must(template.New("unsubscribe").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>Unsubscribe</title></head>
<body>
<h1>Unsubscribe</h1>
<p>Stop receiving this newsletter?</p>
<form method="post" action="{{.Action}}">
<input type="hidden" name="List-Unsubscribe" value="Confirm">
<button type="submit">Unsubscribe</button>
</form>
</body>
</html>
`))

// UnsubscribePage godoc
// @ID          unsubscribePage
// @Summary     Unsubscribe confirmation page
// @Description Target of the unsubscribe link in the email footer. Renders a form that POSTs to /unsubscribe with the same query.
// @Tags        Public
// @Produce     html
// @Param       user     query  string  true  "User ID"     format(uuid)
// @Param       subject  query  int     true  "Subject ID"  minimum(1)
// @Success     200  {string} string "HTML page"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /unsubscribe [get]
func (h *Handlers) UnsubscribePage(c *gin.Context) {
	if _, good := utils.ParseID(c.Query("subject")); !good || strings.TrimSpace(c.Query("user")) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user and subject are required")
		return
	}
	var buf bytes.Buffer
	action := c.Request.URL.Path + "?" + c.Request.URL.RawQuery
	if err := unsubscribePage.Execute(&buf, struct{ Action string }{action}); err != nil {
		failCause(c, http.StatusInternalServerError, ErrCodeInternal, "internal error", err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// ReportBounce godoc
// @ID          reportBounce
// @Summary     Report a bounced address
// @Description Cancels every subscription of the address; an unknown address cancels nothing. With issue_id, the user's delivery of that issue is marked bounced.
// @Tags        Subscriptions
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.BounceRequest  true  "Bounce"
// @Success     200  {object} services.BounceResult
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /bounces [post]
func (h *Handlers) ReportBounce(c *gin.Context) {
	var req BounceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email required")
		return
	}
	res, err := h.bounceSvc.HandleBounce(c.Request.Context(), req.Email, req.IssueID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}
