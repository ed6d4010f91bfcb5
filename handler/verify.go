package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/franklinjsmith-create/SupplyVerify/intake"
	"github.com/franklinjsmith-create/SupplyVerify/middleware"
	"github.com/franklinjsmith-create/SupplyVerify/pkg/logger"
	"github.com/franklinjsmith-create/SupplyVerify/service"
)

// Multipart framing on top of the file itself.
const multipartOverhead = 1 << 20

type VerifyHandler struct {
	store     service.SessionStore
	runner    *service.Runner
	maxUpload int64
}

func NewVerifyHandler(store service.SessionStore, runner *service.Runner, maxUploadMB int64) *VerifyHandler {
	return &VerifyHandler{
		store:     store,
		runner:    runner,
		maxUpload: maxUploadMB << 20,
	}
}

type VerifyResponse struct {
	SessionID string `json:"session_id"`
	Total     int    `json:"total"`
}

type TextRequest struct {
	Text string `json:"text" binding:"required"`
}

// Upload parses an uploaded CSV or XLSX file and starts a batch for it.
func (h *VerifyHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer file.Close()

	if header.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}

	var res intake.Result
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".csv":
		res = intake.ParseCSV(file)
	case ".xlsx":
		res = intake.ParseXLSX(file)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file type. Only CSV and XLSX files are allowed."})
		return
	}

	h.start(c, res, "Failed to parse file")
}

// UploadText parses pasted lines and starts a batch for them.
func (h *VerifyHandler) UploadText(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No text provided"})
		return
	}

	h.start(c, intake.ParseText(req.Text), "Failed to parse text")
}

// start creates the session and submits the batch. A parse with no
// operations and no errors still gets a session, which the runner moves to
// the error state.
func (h *VerifyHandler) start(c *gin.Context, res intake.Result, parseError string) {
	ctx := c.Request.Context()

	if len(res.Operations) == 0 && len(res.Errors) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   parseError,
			"details": res.Errors,
		})
		return
	}
	if len(res.Errors) > 0 {
		logger.Warn(ctx, "parsing warnings", "count", len(res.Errors), "errors", res.Errors)
	}

	sessionID := uuid.NewString()
	if err := h.store.Create(ctx, sessionID, len(res.Operations), middleware.GetUsername(c)); err != nil {
		logger.Error(ctx, "failed to create session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	if _, err := h.runner.Submit(ctx, sessionID, res.Operations); err != nil {
		logger.Error(ctx, "failed to start verification", "session_id", sessionID, "error", err)
		// Close the session so pollers see an error instead of a pending batch.
		if failErr := h.store.Fail(ctx, sessionID, "Failed to start verification"); failErr != nil {
			logger.Error(ctx, "failed to record start error", "session_id", sessionID, "error", failErr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start verification"})
		return
	}

	logger.Info(ctx, "verification started", "session_id", sessionID, "total", len(res.Operations))
	c.JSON(http.StatusOK, VerifyResponse{SessionID: sessionID, Total: len(res.Operations)})
}
