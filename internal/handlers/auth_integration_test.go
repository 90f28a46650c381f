package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/sessiond/internal/app"
	"github.com/charlesng35/sessiond/internal/events"
	"github.com/charlesng35/sessiond/internal/handlers/testutil"
)

func TestAuthHandler_LoginRefreshLogout(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("alice", "Passw0rd!")

	login := env.Login("alice", "Passw0rd!")
	require.True(t, login.RefreshCookie.HttpOnly)
	require.False(t, login.RefreshCookie.Secure)
	require.Equal(t, http.SameSiteStrictMode, login.RefreshCookie.SameSite)
	require.Equal(t, "/", login.RefreshCookie.Path)
	require.Equal(t, 3600, login.RefreshCookie.MaxAge)

	me := env.Request(http.MethodGet, "/auth/me", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, me.Code, me.Body.String())
	var profile map[string]string
	testutil.DecodeJSON(t, me, &profile)
	require.Equal(t, map[string]string{"email": "alice@example.com", "login": "alice", "userId": user.ID}, profile)

	refresh := env.Request(http.MethodPost, "/auth/refresh-token", nil, "", login.RefreshCookie)
	require.Equal(t, http.StatusOK, refresh.Code, refresh.Body.String())
	var rotated testutil.LoginResult
	testutil.DecodeJSON(t, refresh, &rotated)
	require.NotEmpty(t, rotated.AccessToken)
	rotatedCookie := testutil.RefreshCookie(refresh)
	require.NotNil(t, rotatedCookie)
	require.NotEqual(t, login.RefreshCookie.Value, rotatedCookie.Value)

	// A redeemed refresh token is never accepted again.
	replay := env.Request(http.MethodPost, "/auth/refresh-token", nil, "", login.RefreshCookie)
	require.Equal(t, http.StatusUnauthorized, replay.Code)
	require.Equal(t, "UNAUTHORIZED", testutil.DecodeError(t, replay).Code)

	logout := env.Request(http.MethodPost, "/auth/logout", nil, "", rotatedCookie)
	require.Equal(t, http.StatusNoContent, logout.Code, logout.Body.String())
	cleared := testutil.RefreshCookie(logout)
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
	require.Negative(t, cleared.MaxAge)

	after := env.Request(http.MethodPost, "/auth/refresh-token", nil, "", rotatedCookie)
	require.Equal(t, http.StatusUnauthorized, after.Code)

	require.Len(t, env.Events.OfType(events.SessionCreated), 1)
	require.Len(t, env.Events.OfType(events.SessionRefreshed), 1)
	require.Len(t, env.Events.OfType(events.SessionTerminated), 1)
}

func TestAuthHandler_LoginByEmail(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("bob", "Passw0rd!")

	login := env.Login("BOB@example.com", "Passw0rd!")
	require.NotEmpty(t, login.AccessToken)
}

func TestAuthHandler_LoginValidation(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/auth/login", map[string]string{"password": "x"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	info := testutil.DecodeError(t, w)
	require.Equal(t, "BAD_REQUEST", info.Code)
	require.Equal(t, "loginOrEmail", info.Field)

	w = env.Request(http.MethodPost, "/auth/login", "not-an-object", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandler_LoginFailuresAreRateLimited(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("carol", "Passw0rd!")

	bad := map[string]string{"loginOrEmail": "carol", "password": "wrong"}
	for i := 0; i < 5; i++ {
		w := env.Request(http.MethodPost, "/auth/login", bad, "")
		require.Equal(t, http.StatusUnauthorized, w.Code, "attempt %d", i+1)
	}

	w := env.Request(http.MethodPost, "/auth/login", bad, "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "TOO_MANY_REQUESTS", testutil.DecodeError(t, w).Code)
	require.Empty(t, env.Events.OfType(events.SessionCreated))

	// Another address keeps its own budget.
	env.RemoteAddr = "198.51.100.7:4321"
	env.Login("carol", "Passw0rd!")
}

func TestAuthHandler_LogoutAlwaysClearsCookie(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/auth/logout", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, testutil.RefreshCookie(w))

	w = env.Request(http.MethodPost, "/auth/logout", nil, "", &http.Cookie{Name: "refreshToken", Value: "garbage"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	cleared := testutil.RefreshCookie(w)
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
}

func TestAuthHandler_AccessTokenIsNotARefreshToken(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("dave", "Passw0rd!")
	login := env.Login("dave", "Passw0rd!")

	w := env.Request(http.MethodPost, "/auth/refresh-token", nil, "", &http.Cookie{Name: "refreshToken", Value: login.AccessToken})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodGet, "/auth/me", nil, login.RefreshCookie.Value)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
}

func TestAuthHandler_Registration(t *testing.T) {
	env := testutil.NewEnv(t, func(cfg *app.Config) {
		cfg.Auth.Users.AutoConfirm = true
	})

	payload := map[string]string{"login": "erin", "email": "erin@example.com", "password": "secret12"}
	w := env.Request(http.MethodPost, "/auth/registration", payload, "")
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	env.Login("erin", "secret12")

	w = env.Request(http.MethodPost, "/auth/registration", payload, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "login", testutil.DecodeError(t, w).Field)

	payload["login"] = "erin2"
	w = env.Request(http.MethodPost, "/auth/registration", payload, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "email", testutil.DecodeError(t, w).Field)
}

func TestAuthHandler_RegistrationValidation(t *testing.T) {
	env := testutil.NewEnv(t)

	cases := map[string]struct {
		payload map[string]string
		field   string
	}{
		"login charset":  {map[string]string{"login": "bad login", "email": "a@example.com", "password": "secret12"}, "login"},
		"login length":   {map[string]string{"login": "ab", "email": "a@example.com", "password": "secret12"}, "login"},
		"invalid email":  {map[string]string{"login": "frank", "email": "nope", "password": "secret12"}, "email"},
		"short password": {map[string]string{"login": "frank", "email": "a@example.com", "password": "123"}, "password"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, env.Limiter.Clear(t.Context()))
			w := env.Request(http.MethodPost, "/auth/registration", tc.payload, "")
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			require.Equal(t, tc.field, testutil.DecodeError(t, w).Field)
		})
	}
}

func TestAuthHandler_RegistrationIsRateLimited(t *testing.T) {
	env := testutil.NewEnv(t, func(cfg *app.Config) {
		cfg.Auth.RateLimit.Registration = app.RateLimitRule{Max: 2}
	})

	for i, login := range []string{"gina", "hank"} {
		payload := map[string]string{"login": login, "email": login + "@example.com", "password": "secret12"}
		w := env.Request(http.MethodPost, "/auth/registration", payload, "")
		require.Equal(t, http.StatusNoContent, w.Code, "attempt %d: %s", i+1, w.Body.String())
	}

	payload := map[string]string{"login": "ivan", "email": "ivan@example.com", "password": "secret12"}
	w := env.Request(http.MethodPost, "/auth/registration", payload, "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	_, taken, err := env.Users.Exists(t.Context(), "ivan", "ivan@example.com")
	require.NoError(t, err)
	require.False(t, taken)
}
