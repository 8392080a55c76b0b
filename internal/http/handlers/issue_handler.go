// Issue HTTP handlers.
//
// This file exposes the review workflow for generated issues:
//   - GET  /issues                    (list, paginated, status filter)
//   - GET  /issues/{id}               (fetch)
//   - POST /issues/{id}/approve       (draft -> approved)
//   - POST /issues/{id}/unapprove     (approved -> draft)
//   - PUT  /issues/{id}/content       (edit draft or failed issue)
//   - POST /issues/{id}/regenerate    (failed -> generating -> draft|failed)
//   - POST /topics/{id}/issues        (generate a new issue for a topic)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/http/middleware"
)

// UpdateContentRequest is the JSON payload for editing an issue body.
type UpdateContentRequest struct {
	// Title optionally renames the issue.
	Title string `json:"title" binding:"max=255" example:"Week 3: Index basics"`
	// Subject is the email subject line; the title is used when empty.
	Subject   string `json:"subject" binding:"max=255" example:"Index basics"`
	Preheader string `json:"preheader" binding:"max=255" example:"Why your query is slow"`
	HTML      string `json:"html" example:"<p>This week: composite indexes.</p>"`
	Text      string `json:"text" example:"This week: composite indexes."`
}

// ListIssuesResponse wraps a page of issues and pagination information.
type ListIssuesResponse struct {
	Issues     []domain.Issue `json:"issues"`
	Pagination Pagination     `json:"pagination"`
}

// ListIssues godoc
// @ID          listIssues
// @Summary     List issues (paginated)
// @Description Returns a page of issues, newest first, optionally filtered by status.
// @Tags        Issues
// @Produce     json
//
// @Param       status     query  string  false  "Status filter"   Enums(generating, draft, failed, approved, sent)
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListIssuesResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /issues [get]
func (h *Handlers) ListIssues(c *gin.Context) {
	page, pageSize := clampPagination(c)
	status := domain.IssueStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))

	items, total, err := h.issueSvc.ListPage(c.Request.Context(), status, page, pageSize)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, ListIssuesResponse{
		Issues:     items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetIssue godoc
// @ID          getIssue
// @Summary     Get an issue
// @Tags        Issues
// @Produce     json
// @Param       id   path  int  true  "Issue ID"  minimum(1)
// @Success     200  {object} domain.Issue
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Issue not found"
// @Router      /issues/{id} [get]
func (h *Handlers) GetIssue(c *gin.Context) {
	id, good := pathID(c, "id", "issue")
	if !good {
		return
	}
	issue, err := h.issueSvc.Get(c.Request.Context(), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, issue)
}

// ApproveIssue godoc
// @ID          approveIssue
// @Summary     Approve a draft issue
// @Description Moves a draft with content to approved and stamps approved_at.
// @Tags        Issues
// @Produce     json
// @Param       id   path  int  true  "Issue ID"  minimum(1)
// @Success     200  {object} domain.Issue
// @Failure     404  {object} handlers.ErrorResponse "Issue not found"
// @Failure     409  {object} handlers.ErrorResponse "Invalid transition or no content"
// @Router      /issues/{id}/approve [post]
func (h *Handlers) ApproveIssue(c *gin.Context) {
	id, good := pathID(c, "id", "issue")
	if !good {
		return
	}
	issue, err := h.issueSvc.Approve(c.Request.Context(), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	middleware.LoggerFrom(c).Info().Uint("issue_id", issue.ID).Msg("issue approved")
	ok(c, http.StatusOK, issue)
}

// UnapproveIssue godoc
// @ID          unapproveIssue
// @Summary     Return an approved issue to draft
// @Tags        Issues
// @Produce     json
// @Param       id   path  int  true  "Issue ID"  minimum(1)
// @Success     200  {object} domain.Issue
// @Failure     404  {object} handlers.ErrorResponse "Issue not found"
// @Failure     409  {object} handlers.ErrorResponse "Invalid transition"
// @Router      /issues/{id}/unapprove [post]
func (h *Handlers) UnapproveIssue(c *gin.Context) {
	id, good := pathID(c, "id", "issue")
	if !good {
		return
	}
	issue, err := h.issueSvc.Unapprove(c.Request.Context(), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, issue)
}

// UpdateIssueContent godoc
// @ID          updateIssueContent
// @Summary     Edit an issue body
// @Description Replaces the content of a draft or failed issue. A failed issue lands in draft.
// @Tags        Issues
// @Accept      json
// @Produce     json
// @Param       id    path  int                            true  "Issue ID"  minimum(1)
// @Param       body  body  handlers.UpdateContentRequest  true  "New content"
// @Success     200  {object} domain.Issue
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Issue not found"
// @Failure     409  {object} handlers.ErrorResponse "Issue not editable"
// @Router      /issues/{id}/content [put]
func (h *Handlers) UpdateIssueContent(c *gin.Context) {
	id, good := pathID(c, "id", "issue")
	if !good {
		return
	}
	var req UpdateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	content := &domain.IssueContent{
		Subject:   strings.TrimSpace(req.Subject),
		Preheader: strings.TrimSpace(req.Preheader),
		HTML:      req.HTML,
		Text:      req.Text,
	}
	issue, err := h.issueSvc.UpdateContent(c.Request.Context(), id, req.Title, content)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, issue)
}

// RegenerateIssue godoc
// @ID          regenerateIssue
// @Summary     Regenerate a failed issue
// @Description Runs the content generator again. A generator failure is reported on the returned issue (status failed).
// @Tags        Issues
// @Produce     json
// @Param       id   path  int  true  "Issue ID"  minimum(1)
// @Success     200  {object} domain.Issue
// @Failure     404  {object} handlers.ErrorResponse "Issue not found"
// @Failure     409  {object} handlers.ErrorResponse "Invalid transition or no generator"
// @Router      /issues/{id}/regenerate [post]
func (h *Handlers) RegenerateIssue(c *gin.Context) {
	id, good := pathID(c, "id", "issue")
	if !good {
		return
	}
	issue, err := h.issueSvc.Regenerate(c.Request.Context(), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, issue)
}

// GenerateIssue godoc
// @ID          generateIssue
// @Summary     Generate an issue for a topic
// @Description Creates a new issue from the topic. The result is draft (or approved with auto-approve) or failed.
// @Tags        Issues
// @Produce     json
// @Param       id   path  int  true  "Topic ID"  minimum(1)
// @Success     201  {object} domain.Issue
// @Failure     404  {object} handlers.ErrorResponse "Topic not found"
// @Failure     409  {object} handlers.ErrorResponse "No generator configured"
// @Router      /topics/{id}/issues [post]
func (h *Handlers) GenerateIssue(c *gin.Context) {
	topicID, good := pathID(c, "id", "topic")
	if !good {
		return
	}
	issue, err := h.issueSvc.Generate(c.Request.Context(), topicID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, issue)
}
