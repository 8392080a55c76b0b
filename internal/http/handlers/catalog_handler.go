// Catalog HTTP handlers.
//
//   - POST /subjects                    (create a subject, counter at 1)
//   - POST /subjects/{id}/topics        (add a topic at a sequence position)
//   - PUT  /subjects/{id}/sequence      (point the counter at a position)
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// CreateSubjectRequest is the JSON payload for subject creation.
type CreateSubjectRequest struct {
	Name string `json:"name" binding:"required,max=255" example:"Go Weekly"`
	Slug string `json:"slug" binding:"required,max=128" example:"go-weekly"`
}

// CreateTopicRequest is the JSON payload for topic creation. Data is passed
// to the content generator as is.
type CreateTopicRequest struct {
	SequenceNumber int             `json:"sequence_number" binding:"required,min=1" example:"1"`
	Title          string          `json:"title"           binding:"required,max=255" example:"Channels"`
	Data           json.RawMessage `json:"data,omitempty"  swaggertype:"object"`
}

// SetSequenceRequest moves a subject's sequence counter.
type SetSequenceRequest struct {
	SequenceNumber int `json:"sequence_number" binding:"required,min=1" example:"3"`
}

// CreateSubject godoc
// @ID          createSubject
// @Summary     Create a subject
// @Description The subject's sequence counter starts at 1.
// @Tags        Catalog
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.CreateSubjectRequest  true  "Subject"
// @Success     201  {object} domain.Subject
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     409  {object} handlers.ErrorResponse "Slug taken"
// @Router      /subjects [post]
func (h *Handlers) CreateSubject(c *gin.Context) {
	var req CreateSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name and slug are required")
		return
	}
	subj, err := h.catalog.CreateSubject(c.Request.Context(), req.Name, req.Slug)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, subj)
}

// CreateTopic godoc
// @ID          createTopic
// @Summary     Add a topic to a subject
// @Tags        Catalog
// @Accept      json
// @Produce     json
// @Param       id    path  int                          true  "Subject ID"  minimum(1)
// @Param       body  body  handlers.CreateTopicRequest  true  "Topic"
// @Success     201  {object} domain.Topic
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Subject not found"
// @Failure     409  {object} handlers.ErrorResponse "Position taken"
// @Router      /subjects/{id}/topics [post]
func (h *Handlers) CreateTopic(c *gin.Context) {
	subjectID, good := pathID(c, "id", "subject")
	if !good {
		return
	}
	var req CreateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sequence_number (>= 1) and title are required")
		return
	}
	var data datatypes.JSON
	if len(req.Data) > 0 && string(req.Data) != "null" {
		data = datatypes.JSON(req.Data)
	}
	topic, err := h.catalog.CreateTopic(c.Request.Context(), subjectID, req.SequenceNumber, req.Title, data)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, topic)
}

// SetSequence godoc
// @ID          setSequence
// @Summary     Move a subject's sequence counter
// @Description The next broadcast sends the topic at this position.
// @Tags        Catalog
// @Accept      json
// @Produce     json
// @Param       id    path  int                          true  "Subject ID"  minimum(1)
// @Param       body  body  handlers.SetSequenceRequest  true  "Position"
// @Success     200  {object} domain.SubjectSequence
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Subject not found"
// @Router      /subjects/{id}/sequence [put]
func (h *Handlers) SetSequence(c *gin.Context) {
	subjectID, good := pathID(c, "id", "subject")
	if !good {
		return
	}
	var req SetSequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sequence_number must be at least 1")
		return
	}
	seq, err := h.catalog.SetSequence(c.Request.Context(), subjectID, req.SequenceNumber)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, seq)
}
