package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/charlesng35/sessiond/internal/api"
	"github.com/charlesng35/sessiond/internal/app"
	iauth "github.com/charlesng35/sessiond/internal/auth"
	"github.com/charlesng35/sessiond/internal/auth/providers"
	sharedtestutil "github.com/charlesng35/sessiond/internal/database/testutil"
	"github.com/charlesng35/sessiond/internal/events/eventstest"
	"github.com/charlesng35/sessiond/internal/middleware"
	"github.com/charlesng35/sessiond/internal/models"
	"github.com/charlesng35/sessiond/internal/ratelimit"
	"github.com/charlesng35/sessiond/internal/store"
	"github.com/charlesng35/sessiond/pkg/crypto"
	"github.com/charlesng35/sessiond/pkg/mail/mailtest"
	"github.com/charlesng35/sessiond/pkg/response"
)

const testSecret = "test-suite-super-secret-key-32-bytes!!"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	Config   *app.Config
	Tokens   *iauth.JWTService
	Auth     *iauth.AuthService
	Sessions *iauth.SessionService
	Users    *store.UserStore
	Limiter  *ratelimit.MemoryStore
	Events   *eventstest.Recorder
	Mail     *mailtest.Recorder
	// RemoteAddr is used as the client address of every request.
	RemoteAddr string
}

// NewEnv provisions a fresh handler test environment. Options may adjust the
// configuration before services are built.
func NewEnv(t *testing.T, opts ...func(*app.Config)) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Server: app.ServerConfig{Port: 8000, Environment: app.EnvironmentTesting},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret:          testSecret,
				Issuer:          "test-suite",
				AccessTokenTTL:  10 * time.Minute,
				RefreshTokenTTL: time.Hour,
			},
			RateLimit: app.RateLimitSettings{Max: 5, Window: 10 * time.Second},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	tokens, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	users := store.NewUserStore(db)
	sessions := store.NewSessionStore(db)
	publisher := &eventstest.Recorder{}
	limiter := ratelimit.NewMemoryStore()

	authCfg := cfg.Auth.AuthServiceConfig()
	authCfg.Events = publisher
	authSvc, err := iauth.NewAuthService(tokens, users, sessions, authCfg)
	require.NoError(t, err)

	sessionSvc, err := iauth.NewSessionService(users, sessions, iauth.SessionConfig{Events: publisher})
	require.NoError(t, err)

	mailer := &mailtest.Recorder{}
	localCfg := cfg.Auth.LocalProviderConfig()
	localCfg.Mailer = mailer
	local, err := providers.NewLocalProvider(users, crypto.NewPasswordHasher(bcrypt.MinCost), limiter, localCfg)
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		Config:   cfg,
		DB:       db,
		Tokens:   tokens,
		Auth:     authSvc,
		Sessions: sessionSvc,
		Local:    local,
		Users:    users,
		Limiter:  limiter,
	})
	require.NoError(t, err)

	return &Env{
		T:          t,
		DB:         db,
		Router:     router,
		Config:     cfg,
		Tokens:     tokens,
		Auth:       authSvc,
		Sessions:   sessionSvc,
		Users:      users,
		Limiter:    limiter,
		Events:     publisher,
		Mail:       mailer,
		RemoteAddr: "192.0.2.1:1234",
	}
}

// CreateUser inserts a confirmed account with the given password.
func (e *Env) CreateUser(login, password string) *models.User {
	e.T.Helper()

	hashed, err := crypto.NewPasswordHasher(bcrypt.MinCost).Hash(password)
	require.NoError(e.T, err)

	user := &models.User{
		Login:            login,
		Email:            login + "@example.com",
		PasswordHash:     hashed,
		IsEmailConfirmed: true,
	}
	require.NoError(e.T, e.Users.Create(context.Background(), user))
	return user
}

// LoginResult bundles the access token and refresh cookie returned by POST /auth/login.
type LoginResult struct {
	AccessToken   string `json:"accessToken"`
	RefreshCookie *http.Cookie
}

// Login authenticates with the local provider and returns the issued credentials.
func (e *Env) Login(loginOrEmail, password string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/auth/login", map[string]string{
		"loginOrEmail": loginOrEmail,
		"password":     password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	var result LoginResult
	DecodeJSON(e.T, w, &result)
	require.NotEmpty(e.T, result.AccessToken)

	result.RefreshCookie = RefreshCookie(w)
	require.NotNil(e.T, result.RefreshCookie)
	require.NotEmpty(e.T, result.RefreshCookie.Value)
	return result
}

// Request executes an HTTP request against the test router, applying JSON
// encoding, the bearer token and any cookies.
func (e *Env) Request(method, path string, body any, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, path, buf)
	req.RemoteAddr = e.RemoteAddr
	req.Header.Set("User-Agent", "handler-tests/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, cookie := range cookies {
		if cookie != nil {
			req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
		}
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// RefreshCookie returns the refresh token cookie set by the response, if any.
func RefreshCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == middleware.RefreshCookieName {
			return cookie
		}
	}
	return nil
}

// DecodeJSON unmarshals the response body into dest.
func DecodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder, dest *T) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest), w.Body.String())
}

// DecodeError parses the standard error body.
func DecodeError(t *testing.T, w *httptest.ResponseRecorder) response.ErrorInfo {
	t.Helper()
	var body response.ErrorBody
	DecodeJSON(t, w, &body)
	return body.Error
}
