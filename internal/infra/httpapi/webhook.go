package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"pyrus_reminder_bot/internal/app"
	"pyrus_reminder_bot/internal/domain/notification"
	"pyrus_reminder_bot/internal/infra/metrics"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	retryHeader  = "X-Pyrus-Retry"
	maxBodyBytes = 1 << 20
)

// Ingester folds normalized events into the queue.
type Ingester interface {
	Handle(ctx context.Context, events []notification.Event) (app.IngestResult, error)
}

type WebhookOptions struct {
	Secret        string
	SkipSignature bool
}

type webhookHandler struct {
	ingester Ingester
	opts     WebhookOptions
	logger   *logrus.Entry
	now      func() time.Time
}

func (h *webhookHandler) reject(ctx *gin.Context, status int, reason, msg string) {
	metrics.WebhookRejectedTotal.WithLabelValues(reason).Inc()
	ctx.AbortWithStatusJSON(status, gin.H{"status": "error", "error": msg})
}

func (h *webhookHandler) handle(ctx *gin.Context) {
	logCtx := h.logger.WithFields(logrus.Fields{
		"request_id": ctx.GetString(requestIDKey),
		"retry":      ctx.GetHeader(retryHeader),
	})

	body, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logCtx.WithField("limit", tooLarge.Limit).Warn("Webhook body too large")
			h.reject(ctx, http.StatusRequestEntityTooLarge, "too_large", "body too large")
			return
		}
		logCtx.WithError(err).Warn("Failed to read webhook body")
		h.reject(ctx, http.StatusBadRequest, "read_body", "cannot read body")
		return
	}

	if !h.opts.SkipSignature && !VerifySignature(body, h.opts.Secret, ctx.GetHeader(SignatureHeader)) {
		logCtx.Warn("Webhook signature mismatch")
		h.reject(ctx, http.StatusUnauthorized, "signature", "invalid signature")
		return
	}

	events, err := app.Normalize(body, h.now())
	if err != nil {
		logCtx.WithError(err).Warn("Unrecognized webhook payload")
		h.reject(ctx, http.StatusBadRequest, "unrecognized", "unrecognized event")
		return
	}

	res, err := h.ingester.Handle(ctx.Request.Context(), events)
	switch {
	case errors.Is(err, notification.ErrDuplicateComment):
		logCtx.Info("Duplicate webhook delivery ignored")
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "duplicate": true})
		return
	case err != nil:
		logCtx.WithError(err).Error("Failed to ingest webhook events")
		ctx.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "ingest failed"})
		return
	}

	logCtx.WithFields(logrus.Fields{
		"events":    len(events),
		"created":   res.Created,
		"merged":    res.Merged,
		"cancelled": res.Cancelled,
	}).Info("Webhook processed")
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}
