package handlers

import (
	stdErrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/sessiond/internal/auth"
	"github.com/charlesng35/sessiond/internal/middleware"
	"github.com/charlesng35/sessiond/pkg/errors"
	"github.com/charlesng35/sessiond/pkg/logger"
	"github.com/charlesng35/sessiond/pkg/response"
)

// DevicesHandler exposes the caller's device sessions.
type DevicesHandler struct {
	sessions *iauth.SessionService
	log      *zap.Logger
}

func NewDevicesHandler(sessions *iauth.SessionService) *DevicesHandler {
	return &DevicesHandler{sessions: sessions, log: logger.WithModule("handlers.devices")}
}

// GET /security/devices
func (h *DevicesHandler) List(c *gin.Context) {
	views, err := h.sessions.ListActive(requestContext(c), middleware.UserID(c))
	if err != nil {
		h.log.Error("list sessions", zap.Error(err))
		response.Error(c, errors.ErrInternalServer)
		return
	}
	response.JSON(c, http.StatusOK, views)
}

// DELETE /security/devices/:deviceId
func (h *DevicesHandler) Delete(c *gin.Context) {
	deviceID := strings.TrimSpace(c.Param("deviceId"))
	if deviceID == "" {
		response.Error(c, errors.ErrNotFound)
		return
	}
	// The current device is closed through logout, not here.
	if deviceID == middleware.DeviceID(c) {
		response.Error(c, errors.ErrForbidden)
		return
	}

	err := h.sessions.Delete(requestContext(c), middleware.UserID(c), deviceID)
	switch {
	case stdErrors.Is(err, iauth.ErrSessionNotFound):
		response.Error(c, errors.ErrNotFound)
		return
	case stdErrors.Is(err, iauth.ErrForbidden):
		response.Error(c, errors.ErrForbidden)
		return
	case err != nil:
		h.log.Error("delete session", zap.String("device_id", deviceID), zap.Error(err))
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.NoContent(c)
}

// DELETE /security/devices
func (h *DevicesHandler) DeleteOthers(c *gin.Context) {
	if _, err := h.sessions.DeleteAllExceptCurrent(requestContext(c), middleware.UserID(c), middleware.DeviceID(c)); err != nil {
		h.log.Error("delete other sessions", zap.Error(err))
		response.Error(c, errors.ErrInternalServer)
		return
	}
	response.NoContent(c)
}
