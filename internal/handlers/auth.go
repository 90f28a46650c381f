package handlers

import (
	"context"
	stdErrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/sessiond/internal/auth"
	"github.com/charlesng35/sessiond/internal/auth/providers"
	"github.com/charlesng35/sessiond/internal/middleware"
	"github.com/charlesng35/sessiond/internal/models"
	"github.com/charlesng35/sessiond/internal/store"
	"github.com/charlesng35/sessiond/pkg/errors"
	"github.com/charlesng35/sessiond/pkg/logger"
	"github.com/charlesng35/sessiond/pkg/response"
)

// UserReader loads accounts for the profile endpoint.
type UserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// AuthHandler manages authentication flows: sessions, registration with email
// confirmation, password recovery and the profile endpoint.
type AuthHandler struct {
	auth   *iauth.AuthService
	local  *providers.LocalProvider
	users  UserReader
	cookie CookieConfig
	log    *zap.Logger
}

func NewAuthHandler(auth *iauth.AuthService, local *providers.LocalProvider, users UserReader, cookie CookieConfig) *AuthHandler {
	if cookie.MaxAge <= 0 {
		cookie.MaxAge = auth.RefreshTokenTTL()
	}
	return &AuthHandler{
		auth:   auth,
		local:  local,
		users:  users,
		cookie: cookie,
		log:    logger.WithModule("handlers.auth"),
	}
}

type loginRequest struct {
	LoginOrEmail string `json:"loginOrEmail" validate:"required"`
	Password     string `json:"password" validate:"required"`
}

type registrationRequest struct {
	Login    string `json:"login" validate:"required,min=3,max=10,login"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=20"`
}

type confirmationRequest struct {
	Code string `json:"code" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type newPasswordRequest struct {
	NewPassword  string `json:"newPassword" validate:"required,min=6,max=20"`
	RecoveryCode string `json:"recoveryCode" validate:"required"`
}

type accessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type meResponse struct {
	Email  string `json:"email"`
	Login  string `json:"login"`
	UserID string `json:"userId"`
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	user, err := h.local.Authenticate(ctx, providers.AuthenticateInput{
		Identifier: strings.TrimSpace(req.LoginOrEmail),
		Password:   req.Password,
		IPAddress:  c.ClientIP(),
	})
	switch {
	case stdErrors.Is(err, providers.ErrTooManyAttempts):
		response.Error(c, errors.ErrTooManyRequests)
		return
	case stdErrors.Is(err, providers.ErrInvalidCredentials):
		response.Error(c, errors.ErrUnauthorized)
		return
	case err != nil:
		h.log.Error("authenticate user", zap.Error(err))
		response.Error(c, errors.ErrInternalServer)
		return
	}

	pair, err := h.auth.Login(ctx, iauth.LoginInput{
		UserID:      user.ID,
		DeviceLabel: c.Request.UserAgent(),
		IPAddress:   c.ClientIP(),
	})
	if err != nil {
		if stdErrors.Is(err, iauth.ErrUnauthorized) {
			response.Error(c, errors.ErrUnauthorized)
			return
		}
		h.log.Error("open session", zap.String("user_id", user.ID), zap.Error(err))
		response.Error(c, errors.ErrInternalServer)
		return
	}

	setRefreshCookie(c, h.cookie, pair.RefreshToken)
	response.JSON(c, http.StatusOK, accessTokenResponse{AccessToken: pair.AccessToken})
}

// POST /auth/refresh-token
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	token := refreshCookie(c)
	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	pair, err := h.auth.Refresh(requestContext(c), token)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	setRefreshCookie(c, h.cookie, pair.RefreshToken)
	response.JSON(c, http.StatusOK, accessTokenResponse{AccessToken: pair.AccessToken})
}

// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	token := refreshCookie(c)
	clearRefreshCookie(c, h.cookie)

	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	if err := h.auth.Logout(requestContext(c), token); err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	response.NoContent(c)
}

// POST /auth/registration
func (h *AuthHandler) Registration(c *gin.Context) {
	var req registrationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	_, err := h.local.Register(requestContext(c), providers.RegisterInput{
		Login:    req.Login,
		Email:    req.Email,
		Password: req.Password,
	})
	switch {
	case stdErrors.Is(err, providers.ErrLoginTaken):
		response.FieldError(c, "login", "login is already taken")
		return
	case stdErrors.Is(err, providers.ErrEmailTaken):
		response.FieldError(c, "email", "email is already registered")
		return
	case err != nil:
		h.log.Error("register user", zap.Error(err))
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.NoContent(c)
}

// POST /auth/registration-confirmation
func (h *AuthHandler) RegistrationConfirmation(c *gin.Context) {
	var req confirmationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.local.ConfirmRegistration(requestContext(c), req.Code)
	switch {
	case stdErrors.Is(err, providers.ErrInvalidConfirmationCode):
		response.FieldError(c, "code", "The confirmation code is incorrect, expired or already applied")
		return
	case err != nil:
		h.log.Error("confirm registration", zap.Error(err))
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.NoContent(c)
}

// POST /auth/registration-email-resending
func (h *AuthHandler) RegistrationEmailResending(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.local.ResendConfirmation(requestContext(c), req.Email)
	switch {
	case stdErrors.Is(err, providers.ErrEmailNotFound):
		response.FieldError(c, "email", "User with this email does not exist")
		return
	case stdErrors.Is(err, providers.ErrEmailAlreadyConfirmed):
		response.FieldError(c, "email", "Email already confirmed")
		return
	case err != nil:
		h.log.Error("resend confirmation", zap.Error(err))
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.NoContent(c)
}

// POST /auth/password-recovery
func (h *AuthHandler) PasswordRecovery(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.local.RequestPasswordRecovery(requestContext(c), req.Email); err != nil {
		h.log.Error("request password recovery", zap.Error(err))
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.NoContent(c)
}

// POST /auth/new-password
func (h *AuthHandler) NewPassword(c *gin.Context) {
	var req newPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.local.ResetPassword(requestContext(c), req.RecoveryCode, req.NewPassword)
	switch {
	case stdErrors.Is(err, providers.ErrInvalidRecoveryCode):
		response.FieldError(c, "recoveryCode", "Recovery code is incorrect or expired")
		return
	case err != nil:
		h.log.Error("reset password", zap.Error(err))
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.NoContent(c)
}

// GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	user, err := h.users.FindByID(requestContext(c), userID)
	if err != nil {
		if stdErrors.Is(err, store.ErrNotFound) {
			response.Error(c, errors.ErrUnauthorized)
			return
		}
		h.log.Error("load profile", zap.String("user_id", userID), zap.Error(err))
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.JSON(c, http.StatusOK, meResponse{
		Email:  user.Email,
		Login:  user.Login,
		UserID: user.ID,
	})
}

func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}
