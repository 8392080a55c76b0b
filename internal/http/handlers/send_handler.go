// Send HTTP handlers.
//
// Dispatch endpoints run the send inline and return its totals:
//   - POST /topics/{id}/send-admin      (preview to the admin recipient)
//   - POST /subjects/{id}/broadcast     (send the current issue to all subscribers)
//   - POST /issues/{id}/resend          (retry failed recipients of a sent issue)
//
// Reporting endpoints read the delivery ledger:
//   - GET /issues/{id}/failed-users
//   - GET /issues/{id}/deliveries
//   - GET /issues/metrics
//   - GET /send-results
//
// The dispatch endpoints are wrapped by middleware.Idempotent in the router,
// so a retried request with the same Idempotency-Key is answered from the
// stored response instead of mailing recipients again.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/http/middleware"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
	"github.com/tbourn/go-newsletter-backend/internal/utils"
)

// SendAdminResponse reports the outcome of an admin preview.
type SendAdminResponse struct {
	TopicID     uint `json:"topic_id"`
	Sequence    int  `json:"sequence,omitempty"`
	TotalSent   int  `json:"total_sent"`
	TotalFailed int  `json:"total_failed"`
}

// FailedUsersResponse lists the recipients whose delivery failed or bounced.
type FailedUsersResponse struct {
	IssueID uint     `json:"issue_id"`
	UserIDs []string `json:"user_ids"`
}

// DeliveryCountsResponse is the ledger row count per delivery status of one
// issue.
type DeliveryCountsResponse struct {
	IssueID uint                            `json:"issue_id"`
	Total   int64                           `json:"total"`
	Counts  map[domain.DeliveryStatus]int64 `json:"counts"`
}

// IssueMetricsResponse wraps per-issue delivery metrics.
type IssueMetricsResponse struct {
	Issues []repo.IssueMetrics `json:"issues"`
}

// ListSendResultsResponse wraps a page of broadcast records.
type ListSendResultsResponse struct {
	Results    []domain.NewsletterSendResult `json:"results"`
	Pagination Pagination                    `json:"pagination"`
}

// SendToAdmin godoc
// @ID          sendToAdmin
// @Summary     Preview the latest issue of a topic
// @Description Sends the topic's latest issue to the configured admin address. The issue must be approved and have content. Does not advance the subject sequence.
// @Tags        Sends
// @Produce     json
//
// @Param       id               path    int     true   "Topic ID"                       minimum(1)
// @Param       sequence         query   int     false  "Sequence number used in links"  minimum(1)
// @Param       Idempotency-Key  header  string  false  "Replay-safe retry key"
//
// @Success     200  {object} handlers.SendAdminResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Topic or issue not found"
// @Failure     409  {object} handlers.ErrorResponse "Issue not approved or empty"
// @Failure     502  {object} handlers.ErrorResponse "Transport failure"
// @Router      /topics/{id}/send-admin [post]
func (h *Handlers) SendToAdmin(c *gin.Context) {
	topicID, good := pathID(c, "id", "topic")
	if !good {
		return
	}
	seq := 0
	if raw := c.Query("sequence"); raw != "" {
		n, ok := utils.ParseID(raw)
		if !ok {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sequence must be a positive integer")
			return
		}
		seq = int(n)
	}

	res, err := h.sendSvc.SendToAdmin(c.Request.Context(), topicID, seq)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, SendAdminResponse{
		TopicID:     topicID,
		Sequence:    seq,
		TotalSent:   res.TotalSent,
		TotalFailed: res.TotalFailed,
	})
}

// Broadcast godoc
// @ID          broadcastSubject
// @Summary     Broadcast the current issue of a subject
// @Description Sends the approved issue at the subject's current sequence to every active subscriber, then advances the sequence. Failures are reported in the body with success=false.
// @Tags        Sends
// @Produce     json
//
// @Param       id               path    int     true   "Subject ID"  minimum(1)
// @Param       Idempotency-Key  header  string  false  "Replay-safe retry key"
//
// @Success     200  {object} services.BroadcastResult
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     422  {object} services.BroadcastResult "Broadcast failed"
// @Router      /subjects/{id}/broadcast [post]
func (h *Handlers) Broadcast(c *gin.Context) {
	subjectID, good := pathID(c, "id", "subject")
	if !good {
		return
	}
	res := h.sendSvc.SendToAllSubscribers(c.Request.Context(), subjectID)
	lg := middleware.LoggerFrom(c)
	if !res.Success {
		lg.Warn().Uint("subject_id", subjectID).Str("error", res.Error).Msg("broadcast failed")
		ok(c, http.StatusUnprocessableEntity, res)
		return
	}
	lg.Info().
		Uint("subject_id", subjectID).
		Int("sequence", res.SequenceNumber).
		Int("sent", res.TotalSent).
		Int("failed", res.TotalFailed).
		Msg("broadcast completed")
	ok(c, http.StatusOK, res)
}

// ResendIssue godoc
// @ID          resendIssue
// @Summary     Resend a sent issue to failed recipients
// @Description Retries pending, failed, and bounced deliveries of recipients who are still actively subscribed. Totals cover this run only.
// @Tags        Sends
// @Produce     json
//
// @Param       id               path    int     true   "Issue ID"  minimum(1)
// @Param       Idempotency-Key  header  string  false  "Replay-safe retry key"
//
// @Success     200  {object} services.ResendResult
// @Failure     404  {object} handlers.ErrorResponse "Issue not found"
// @Failure     409  {object} handlers.ErrorResponse "Issue not sent or empty"
// @Router      /issues/{id}/resend [post]
func (h *Handlers) ResendIssue(c *gin.Context) {
	id, good := pathID(c, "id", "issue")
	if !good {
		return
	}
	res, err := h.sendSvc.ResendToFailedUsers(c.Request.Context(), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// FailedUsers godoc
// @ID          failedUsers
// @Summary     List failed recipients of an issue
// @Tags        Sends
// @Produce     json
// @Param       id   path  int  true  "Issue ID"  minimum(1)
// @Success     200  {object} handlers.FailedUsersResponse
// @Failure     404  {object} handlers.ErrorResponse "Issue not found"
// @Router      /issues/{id}/failed-users [get]
func (h *Handlers) FailedUsers(c *gin.Context) {
	id, good := pathID(c, "id", "issue")
	if !good {
		return
	}
	ids, err := h.sendSvc.FailedUserIDs(c.Request.Context(), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, FailedUsersResponse{IssueID: id, UserIDs: ids})
}

// DeliveryCounts godoc
// @ID          deliveryCounts
// @Summary     Delivery status breakdown of an issue
// @Description Counts ledger rows per status. Every status is listed, zero when unused.
// @Tags        Sends
// @Produce     json
// @Param       id   path  int  true  "Issue ID"  minimum(1)
// @Success     200  {object} handlers.DeliveryCountsResponse
// @Failure     404  {object} handlers.ErrorResponse "Issue not found"
// @Router      /issues/{id}/deliveries [get]
func (h *Handlers) DeliveryCounts(c *gin.Context) {
	id, good := pathID(c, "id", "issue")
	if !good {
		return
	}
	counts, err := h.sendSvc.DeliveryCounts(c.Request.Context(), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	ok(c, http.StatusOK, DeliveryCountsResponse{IssueID: id, Total: total, Counts: counts})
}

// IssueMetrics godoc
// @ID          issueMetrics
// @Summary     Delivery metrics of recently sent issues
// @Tags        Sends
// @Produce     json
// @Param       limit  query  int  false  "Number of issues"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.IssueMetricsResponse
// @Router      /issues/metrics [get]
func (h *Handlers) IssueMetrics(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 20)
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	m, err := h.sendSvc.RecentMetrics(c.Request.Context(), limit)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, IssueMetricsResponse{Issues: m})
}

// ListSendResults godoc
// @ID          listSendResults
// @Summary     List broadcast records (paginated)
// @Tags        Sends
// @Produce     json
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListSendResultsResponse
// @Router      /send-results [get]
func (h *Handlers) ListSendResults(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.sendSvc.ListSendResults(c.Request.Context(), page, pageSize)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, ListSendResultsResponse{
		Results:    items,
		Pagination: newPagination(page, pageSize, total),
	})
}
