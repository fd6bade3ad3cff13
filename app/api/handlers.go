package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/recapio/recap/app/database"
	"github.com/recapio/recap/app/extract"
	"github.com/recapio/recap/app/pipeline"
	"github.com/recapio/recap/app/quota"
	"github.com/recapio/recap/app/transcribe"
	"github.com/recapio/recap/app/translate"
)

type Handler struct {
	contents        database.ContentRepository
	summaries       database.SummaryRepository
	gate            *quota.Gate
	enqueuer        TaskEnqueuer
	completer       *transcribe.Completer
	translator      TranslationService
	webhookSecret   string
	defaultLanguage string
	version         string
}

func NewHandler(contents database.ContentRepository, summaries database.SummaryRepository,
	gate *quota.Gate, enqueuer TaskEnqueuer, completer *transcribe.Completer,
	translator TranslationService, webhookSecret, defaultLanguage, version string) *Handler {
	return &Handler{
		contents:        contents,
		summaries:       summaries,
		gate:            gate,
		enqueuer:        enqueuer,
		completer:       completer,
		translator:      translator,
		webhookSecret:   webhookSecret,
		defaultLanguage: defaultLanguage,
		version:         version,
	}
}

// SubmitContent accepts a URL for processing. The quota counter is only
// incremented after the request itself has validated, so a malformed
// submission never consumes a unit.
func (h *Handler) SubmitContent(c *gin.Context) {
	userID := c.GetHeader(headerUserID)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing " + headerUserID + " header"})
		return
	}

	var req submitContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	parsed, err := url.ParseRequestURI(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url must be absolute http(s)"})
		return
	}

	result, err := h.gate.CheckAndIncrement(c.Request.Context(), userID, quota.MetricAnalyses)
	if err != nil {
		h.renderError(c, err)
		return
	}
	if !result.Allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": "monthly analysis limit reached",
			"limit": result.Limit,
			"tier":  string(result.Tier),
			"hint":  "upgrade your subscription tier to raise the limit",
		})
		return
	}

	content := &database.Content{
		ID:              uuid.NewString(),
		UserID:          userID,
		URL:             req.URL,
		Type:            database.ContentType(extract.Classify(req.URL)),
		Status:          database.ContentStatusPending,
		DisplayLanguage: h.defaultLanguage,
	}
	if err := h.contents.Create(c.Request.Context(), content); err != nil {
		slog.Error("Failed to create content", "url", req.URL, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create content"})
		return
	}
	if _, err := h.summaries.Upsert(c.Request.Context(), content.ID, h.defaultLanguage, ""); err != nil {
		slog.Error("Failed to create placeholder summary", "content_id", content.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create summary"})
		return
	}

	h.enqueuer.EnqueueProcessContent(content.ID)

	slog.Info("Content submitted", "content_id", content.ID, "type", content.Type, "user_id", userID)
	c.JSON(http.StatusAccepted, submitContentResponse{
		ContentID: content.ID,
		Type:      string(content.Type),
		Status:    content.Status,
	})
}

// GetSummary returns the summary row for polling, including whatever sections
// have landed so far.
func (h *Handler) GetSummary(c *gin.Context) {
	userID := c.GetHeader(headerUserID)
	contentID := c.Param("id")

	content, err := h.contents.GetByID(c.Request.Context(), contentID)
	if err != nil {
		slog.Error("Database error", "operation", "get_content", "content_id", contentID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if content == nil || content.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "content not found"})
		return
	}

	lang := c.Query("lang")
	if lang == "" {
		lang = content.DisplayLanguage
	}
	if lang == "" {
		lang = h.defaultLanguage
	}

	summary, err := h.summaries.GetByContentAndLanguage(c.Request.Context(), contentID, lang)
	if err != nil {
		slog.Error("Database error", "operation", "get_summary", "content_id", contentID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if summary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no summary for language " + lang})
		return
	}

	c.JSON(http.StatusOK, newSummaryResponse(summary))
}

// Translate requests the summary in another language.
func (h *Handler) Translate(c *gin.Context) {
	userID := c.GetHeader(headerUserID)
	contentID := c.Param("id")

	var req translateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "language is required"})
		return
	}

	summary, err := h.translator.Translate(c.Request.Context(), userID, contentID, req.Language)
	if errors.Is(err, translate.ErrInFlight) {
		c.JSON(http.StatusAccepted, gin.H{"status": database.SummaryStatusTranslating,
			"message": "translation in progress, poll the summary endpoint"})
		return
	}
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, newSummaryResponse(summary))
}

// TranscriptionWebhook receives the provider's completion callback. Duplicate
// deliveries and unknown job ids both return 200 so the provider stops
// retrying.
func (h *Handler) TranscriptionWebhook(c *gin.Context) {
	if h.webhookSecret != "" && c.Query("token") != h.webhookSecret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
		return
	}

	var payload transcribe.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}
	if payload.TranscriptID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transcript_id is required"})
		return
	}

	content, err := h.contents.GetByTranscriptJobID(c.Request.Context(), payload.TranscriptID)
	if err != nil {
		slog.Error("Database error", "operation", "get_by_job", "job_id", payload.TranscriptID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if content == nil {
		slog.Warn("Webhook for unknown transcription job", "job_id", payload.TranscriptID)
		c.Status(http.StatusOK)
		return
	}

	switch payload.Status {
	case transcribe.JobStatusCompleted:
		err = h.completer.Complete(c.Request.Context(), content.ID, payload.Utterances, payload.AudioDuration)
	case transcribe.JobStatusError:
		slog.Warn("Transcription provider reported failure",
			"content_id", content.ID, "error", payload.Error)
		err = h.completer.Fail(c.Request.Context(), content.ID, "PROVIDER_ERROR")
	default:
		c.Status(http.StatusOK)
		return
	}

	if err != nil {
		slog.Error("Webhook processing failed", "content_id", content.ID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.version})
}

// renderError maps the pipeline error taxonomy onto HTTP statuses.
func (h *Handler) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch pipeline.KindOf(err) {
	case pipeline.KindTransient:
		status = http.StatusServiceUnavailable
	case pipeline.KindPermanentInput:
		status = http.StatusBadRequest
	case pipeline.KindProviderRejected:
		status = http.StatusUnprocessableEntity
	case pipeline.KindQuotaExceeded:
		status = http.StatusTooManyRequests
	}

	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}

	body := gin.H{"error": err.Error()}
	if status == http.StatusTooManyRequests {
		body["hint"] = "upgrade your subscription tier to raise the limit"
	}
	c.JSON(status, body)
}
