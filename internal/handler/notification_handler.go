package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notifyhub/internal/model"
	"notifyhub/internal/repository"
	"notifyhub/internal/router"
)

type sendPayload struct {
	UserID        string        `json:"userId" binding:"required"`
	Content       model.Content `json:"content" binding:"required"`
	Channel       string        `json:"channel"`
	ScheduledTime *time.Time    `json:"scheduledTime"`
	Priority      string        `json:"priority"`
	IsBatch       bool          `json:"isBatch"`
}

type NotificationHandler struct {
	router   *router.Router
	intents  *repository.IntentRepository
	failures *repository.FailureRepository
	logger   *zap.Logger
}

func NewNotificationHandler(r *router.Router, intents *repository.IntentRepository, failures *repository.FailureRepository, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		router:   r,
		intents:  intents,
		failures: failures,
		logger:   logger,
	}
}

// Send dispatches to one explicit channel.
func (h *NotificationHandler) Send(c *gin.Context) {
	var payload sendPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	channel, err := model.ParseChannel(payload.Channel)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := model.SendRequest{
		UserID:        payload.UserID,
		Content:       payload.Content,
		Channel:       channel,
		ScheduledTime: payload.ScheduledTime,
		Priority:      model.Priority(payload.Priority),
		IsBatch:       payload.IsBatch,
	}
	if err := h.router.SendToChannel(c.Request.Context(), req); err != nil {
		if errors.Is(err, model.ErrUnsupportedChannel) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Send: dispatch failed",
			zap.String("user_id", payload.UserID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send notification"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// SendAll fans out to every channel the user has enabled.
func (h *NotificationHandler) SendAll(c *gin.Context) {
	var payload sendPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := model.SendRequest{
		UserID:        payload.UserID,
		Content:       payload.Content,
		ScheduledTime: payload.ScheduledTime,
		Priority:      model.Priority(payload.Priority),
		IsBatch:       payload.IsBatch,
	}
	if err := h.router.SendToAllChannels(c.Request.Context(), req); err != nil {
		if errors.Is(err, model.ErrPreferencesNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("SendAll: fan-out failed",
			zap.String("user_id", payload.UserID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send notification"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// List returns a user's stored notification intents, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	userID := c.Param("userId")

	notifications, err := h.intents.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("List: failed to fetch notifications",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// ListFailures returns dead-lettered deliveries, optionally filtered by
// channel via ?channel=EMAIL and bounded by ?limit=.
func (h *NotificationHandler) ListFailures(c *gin.Context) {
	var channel model.Channel
	if raw := c.Query("channel"); raw != "" {
		parsed, err := model.ParseChannel(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		channel = parsed
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	records, err := h.failures.List(c.Request.Context(), channel, limit)
	if err != nil {
		h.logger.Error("ListFailures: query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch failures"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"failures": records})
}
