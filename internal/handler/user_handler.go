package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notifyhub/internal/model"
)

type preferencePayload struct {
	UserID   string   `json:"userId" binding:"required"`
	Channels []string `json:"channels"`
}

// PreferenceStore is the repository slice the user endpoints need.
type PreferenceStore interface {
	Upsert(ctx context.Context, p *model.Preference) error
	Get(ctx context.Context, userID string) (*model.Preference, error)
}

type UserHandler struct {
	preferences PreferenceStore
	logger      *zap.Logger
}

func NewUserHandler(preferences PreferenceStore, logger *zap.Logger) *UserHandler {
	return &UserHandler{preferences: preferences, logger: logger}
}

// Register creates the user's preference row. Omitted channels default to
// all of them.
func (h *UserHandler) Register(c *gin.Context) {
	var payload preferencePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	channels, err := parseChannels(payload.Channels)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(channels) == 0 {
		channels = model.DefaultChannels()
	}

	pref := &model.Preference{UserID: payload.UserID, Channels: channels}
	if err := h.preferences.Upsert(c.Request.Context(), pref); err != nil {
		h.logger.Error("Register: failed to store preferences",
			zap.String("user_id", payload.UserID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"userId": pref.UserID, "channels": pref.Channels})
}

// UpdatePreferences replaces the user's channel set wholesale.
func (h *UserHandler) UpdatePreferences(c *gin.Context) {
	var payload preferencePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	channels, err := parseChannels(payload.Channels)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pref := &model.Preference{UserID: payload.UserID, Channels: channels}
	if err := h.preferences.Upsert(c.Request.Context(), pref); err != nil {
		h.logger.Error("UpdatePreferences: failed to store preferences",
			zap.String("user_id", payload.UserID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update preferences"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"userId": pref.UserID, "channels": pref.Channels})
}

func (h *UserHandler) GetPreferences(c *gin.Context) {
	userID := c.Param("userId")

	pref, err := h.preferences.Get(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, model.ErrPreferencesNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("GetPreferences: query failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch preferences"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"userId": pref.UserID, "channels": pref.Channels})
}

func parseChannels(raw []string) ([]model.Channel, error) {
	var channels []model.Channel
	for _, s := range raw {
		ch, err := model.ParseChannel(s)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}
