package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/andre-mobilemed/create-pdf-from-dicom-images/internal/callback"
	"github.com/andre-mobilemed/create-pdf-from-dicom-images/internal/config"
	"github.com/andre-mobilemed/create-pdf-from-dicom-images/internal/dicomweb"
	"github.com/andre-mobilemed/create-pdf-from-dicom-images/internal/render"
	"github.com/andre-mobilemed/create-pdf-from-dicom-images/internal/storage"
)

// Processor retrieves and assembles one study. *dicomweb.Scheduler
// satisfies it; tests substitute fakes.
type Processor interface {
	ProcessStudy(ctx context.Context, studyUID string, maxWorkers int) (*dicomweb.Result, error)
}

// RenderRequest is the body of the asynchronous render endpoint. The Cod*
// fields pass through to the result callback unchanged.
type RenderRequest struct {
	ExamID           int64  `json:"examID" binding:"required"`
	StudyIUID        string `json:"pacs_studies_iuid" binding:"required"`
	CodAutorizacao   string `json:"CodAutorizacao"`
	CodFaturamento   string `json:"CodFaturamento"`
	CodProcedimento  string `json:"CodProcedimento"`
	Authorization    string `json:"Authorization"`
	IntegrationToken string `json:"IntegrationToken"`
	URLCallback      string `json:"UrlCallback"`
	Anonymize        bool   `json:"anonymize"`
	CoverPage        bool   `json:"cover_page"`
	MaxWorkers       int    `json:"max_workers"`
}

// RenderRequestSync is the body of the synchronous (legacy) endpoint.
type RenderRequestSync struct {
	ExamID           int64  `json:"examID" binding:"required"`
	StudyIUID        string `json:"pacs_studies_iuid" binding:"required"`
	IntegrationToken string `json:"IntegrationToken"`
	Anonymize        bool   `json:"anonymize"`
	CoverPage        bool   `json:"cover_page"`
	MaxWorkers       int    `json:"max_workers"`
}

// Handler holds dependencies for API handlers.
type Handler struct {
	processor Processor
	notifier  *callback.Notifier
	jobs      storage.JobStore
	cfg       *config.Config

	// inflight guards against duplicate submissions of the same
	// (examID, studyUID) while a render is still running.
	inflight *xsync.MapOf[string, time.Time]
}

// NewHandler creates a new handler instance.
func NewHandler(processor Processor, notifier *callback.Notifier, jobs storage.JobStore, cfg *config.Config) *Handler {
	return &Handler{
		processor: processor,
		notifier:  notifier,
		jobs:      jobs,
		cfg:       cfg,
		inflight:  xsync.NewMapOf[string, time.Time](),
	}
}

// HealthHandler reports service configuration state.
func (h *Handler) HealthHandler(c *gin.Context) {
	dicomServer := "not_configured"
	if h.cfg.WadoURL != "" {
		dicomServer = "configured"
	}
	ipValidation := "disabled"
	if len(h.cfg.AllowedClientIPs) > 0 {
		ipValidation = "enabled"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"dicom_server":      dicomServer,
		"ip_validation":     ipValidation,
		"allowed_ips_count": len(h.cfg.AllowedClientIPs),
	})
}

// RenderAsyncHandler accepts a render request, returns immediately, and
// processes in the background, delivering the PDF via callback.
func (h *Handler) RenderAsyncHandler(c *gin.Context) {
	var req RenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.URLCallback == "" {
		c.JSON(http.StatusInternalServerError,
			gin.H{"error": "Callback URL not configured (UrlCallback is missing in request)"})
		return
	}

	processKey := fmt.Sprintf("%d-%s", req.ExamID, req.StudyIUID)
	if _, loaded := h.inflight.LoadOrStore(processKey, time.Now()); loaded {
		slog.WarnContext(c.Request.Context(), "Request already being processed", "processKey", processKey)
		c.JSON(http.StatusConflict, gin.H{
			"error": fmt.Sprintf("Request for examID %d is already being processed", req.ExamID),
		})
		return
	}

	jobID := uuid.NewString()
	if err := h.jobs.UpsertJob(c.Request.Context(), storage.RenderJob{
		ID:       jobID,
		ExamID:   req.ExamID,
		StudyUID: req.StudyIUID,
		Status:   storage.JobPending,
	}); err != nil {
		slog.ErrorContext(c.Request.Context(), "Failed to record render job", "jobID", jobID, "error", err)
	}

	slog.InfoContext(c.Request.Context(), "Accepted async render request",
		"examID", req.ExamID, "studyUID", req.StudyIUID, "jobID", jobID)

	go h.processAsync(req, jobID, processKey)

	c.JSON(http.StatusOK, gin.H{
		"status":            "accepted",
		"message":           "Request accepted for processing",
		"examID":            req.ExamID,
		"pacs_studies_iuid": req.StudyIUID,
		"callback_url":      req.URLCallback,
		"job_id":            jobID,
	})
}

// processAsync runs the full retrieve/render/deliver sequence in the
// background and releases the duplicate guard when done.
func (h *Handler) processAsync(req RenderRequest, jobID, processKey string) {
	ctx := context.Background()
	defer h.inflight.Delete(processKey)

	start := time.Now()
	h.updateJob(ctx, jobID, req, storage.JobProcessing, "", 0)

	pdfBytes, err := h.renderStudy(ctx, req.StudyIUID, req.MaxWorkers, req.CoverPage, req.Anonymize)
	if err != nil {
		slog.ErrorContext(ctx, "Async render failed", "examID", req.ExamID, "error", err)
		h.updateJob(ctx, jobID, req, storage.JobFailed, err.Error(), 0)
		h.notifier.SendLog(ctx, callback.LogEntry{
			ExamID:        req.ExamID,
			Success:       false,
			Message:       fmt.Sprintf("Error processing DICOM to PDF: %v", err),
			StatusCode:    http.StatusInternalServerError,
			StatusMessage: "Internal Server Error",
			Extra:         map[string]any{"studyIUID": req.StudyIUID},
		}, req.IntegrationToken)
		return
	}

	elapsed := time.Since(start)
	slog.InfoContext(ctx, "Async render completed",
		"examID", req.ExamID, "pdfSize", len(pdfBytes), "elapsed", elapsed.Round(time.Millisecond))

	payload := callback.ResultPayload{
		PDF:             base64.StdEncoding.EncodeToString(pdfBytes),
		CodAutorizacao:  req.CodAutorizacao,
		CodFaturamento:  req.CodFaturamento,
		CodProcedimento: req.CodProcedimento,
	}
	deliveryErr := h.notifier.SendResult(ctx, req.URLCallback, req.Authorization, payload)

	entry := callback.LogEntry{
		ExamID:        req.ExamID,
		Success:       deliveryErr == nil,
		StatusCode:    http.StatusOK,
		StatusMessage: "OK",
		Message:       fmt.Sprintf("PDF de imagens DICOM gerado com sucesso (async), tempo de processamento: %.2fs", elapsed.Seconds()),
		Extra: map[string]any{
			"studyIUID":       req.StudyIUID,
			"processing_time": fmt.Sprintf("%.2fs", elapsed.Seconds()),
			"pdf_size":        len(pdfBytes),
		},
	}
	if deliveryErr != nil {
		slog.ErrorContext(ctx, "Result callback failed", "examID", req.ExamID, "error", deliveryErr)
		entry.Message = fmt.Sprintf("Callback failed: %v", deliveryErr)
		entry.StatusCode = http.StatusInternalServerError
		entry.StatusMessage = "Internal Server Error"
	}
	h.notifier.SendLog(ctx, entry, req.IntegrationToken)

	if deliveryErr != nil {
		h.updateJob(ctx, jobID, req, storage.JobDeliveryFailed, deliveryErr.Error(), int64(len(pdfBytes)))
		return
	}
	h.updateJob(ctx, jobID, req, storage.JobDone, "", int64(len(pdfBytes)))
}

// RenderSyncHandler processes the study inline and streams the PDF back.
func (h *Handler) RenderSyncHandler(c *gin.Context) {
	var req RenderRequestSync
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	start := time.Now()
	slog.InfoContext(ctx, "Starting sync render", "examID", req.ExamID, "studyUID", req.StudyIUID)

	pdfBytes, err := h.renderStudy(ctx, req.StudyIUID, req.MaxWorkers, req.CoverPage, req.Anonymize)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errNoStudies) {
			status = http.StatusBadRequest
		}
		h.notifier.SendLog(ctx, callback.LogEntry{
			ExamID:        req.ExamID,
			Success:       false,
			Message:       fmt.Sprintf("Error processing DICOM to PDF: %v", err),
			StatusCode:    status,
			StatusMessage: http.StatusText(status),
			Extra:         map[string]any{"studyIUID": req.StudyIUID},
		}, req.IntegrationToken)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	elapsed := time.Since(start)
	h.notifier.SendLog(ctx, callback.LogEntry{
		ExamID:        req.ExamID,
		Success:       true,
		Message:       fmt.Sprintf("PDF de imagens DICOM gerado com sucesso (sync), tempo de processamento: %.2fs", elapsed.Seconds()),
		StatusCode:    http.StatusOK,
		StatusMessage: "OK",
		Extra: map[string]any{
			"studyIUID":       req.StudyIUID,
			"processing_time": fmt.Sprintf("%.2fs", elapsed.Seconds()),
			"pdf_size":        len(pdfBytes),
		},
	}, req.IntegrationToken)

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=exam_%d.pdf", req.ExamID))
	c.Data(http.StatusOK, "application/pdf", pdfBytes)
}

// JobStatusHandler reports the stored state of a render job.
func (h *Handler) JobStatusHandler(c *gin.Context) {
	job, found, err := h.jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query job status"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id":   job.ID,
		"examID":   job.ExamID,
		"studyUID": job.StudyUID,
		"status":   job.Status,
		"error":    job.Error,
		"pdf_size": job.PDFSize,
	})
}

var errNoStudies = fmt.Errorf("no valid DICOM instances found in DICOMweb server")

// renderStudy retrieves, assembles, and renders one study. An empty result
// from the scheduler is reported as errNoStudies so callers can map it to a
// client error rather than a server failure.
func (h *Handler) renderStudy(ctx context.Context, studyUID string, maxWorkers int, coverPage, anonymize bool) ([]byte, error) {
	result, err := h.processor.ProcessStudy(ctx, studyUID, h.clampWorkers(maxWorkers))
	if err != nil {
		return nil, err
	}
	if len(result.Studies) == 0 {
		return nil, errNoStudies
	}
	return render.CreatePDF(result.Studies, render.Options{CoverPage: coverPage, Anonymize: anonymize})
}

// clampWorkers bounds the requested concurrency to the configured limits.
func (h *Handler) clampWorkers(requested int) int {
	if requested <= 0 {
		return h.cfg.DefaultMaxWorkers
	}
	if requested > h.cfg.MaxAllowedWorkers {
		return h.cfg.MaxAllowedWorkers
	}
	return requested
}

func (h *Handler) updateJob(ctx context.Context, jobID string, req RenderRequest, status storage.JobStatus, errMsg string, pdfSize int64) {
	err := h.jobs.UpsertJob(ctx, storage.RenderJob{
		ID:       jobID,
		ExamID:   req.ExamID,
		StudyUID: req.StudyIUID,
		Status:   status,
		Error:    errMsg,
		PDFSize:  pdfSize,
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to update render job", "jobID", jobID, "status", status, "error", err)
	}
}
