package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/franklinjsmith-create/SupplyVerify/middleware"
	"github.com/franklinjsmith-create/SupplyVerify/model"
	"github.com/franklinjsmith-create/SupplyVerify/pkg/logger"
	"github.com/franklinjsmith-create/SupplyVerify/service"
)

type ProgressResponse struct {
	Total     int                        `json:"total"`
	Completed int                        `json:"completed"`
	Current   string                     `json:"current"`
	Results   []model.VerificationResult `json:"results"`
	Status    model.SessionStatus        `json:"status"`
	Error     string                     `json:"error,omitempty"`
}

// Progress returns the current snapshot of a session. Sessions owned by
// another user are reported as missing.
func (h *VerifyHandler) Progress(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("session_id")

	sess, err := h.store.Get(ctx, id)
	if errors.Is(err, service.ErrSessionNotFound) || (err == nil && sess.Owner != middleware.GetUsername(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found or expired"})
		return
	}
	if err != nil {
		logger.Error(ctx, "failed to load session", "session_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
		return
	}

	results := sess.Results
	if results == nil {
		results = []model.VerificationResult{}
	}
	c.JSON(http.StatusOK, ProgressResponse{
		Total:     sess.Total,
		Completed: sess.Completed,
		Current:   sess.Current,
		Results:   results,
		Status:    sess.Status,
		Error:     sess.Error,
	})
}
