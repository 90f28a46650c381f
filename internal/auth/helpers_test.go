package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/charlesng35/sessiond/internal/database/testutil"
	"github.com/charlesng35/sessiond/internal/events/eventstest"
	"github.com/charlesng35/sessiond/internal/models"
	"github.com/charlesng35/sessiond/internal/store"
	"github.com/charlesng35/sessiond/pkg/crypto"
)

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

type testEnv struct {
	clock    *testClock
	tokens   *JWTService
	users    *store.UserStore
	sessions *store.SessionStore
	auth     *AuthService
	manager  *SessionService
	events   *eventstest.Recorder
}

func setupAuthEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := newTestClock()
	publisher := &eventstest.Recorder{}

	tokens, err := NewJWTService(JWTConfig{Secret: "test-secret", Clock: clock.Now})
	require.NoError(t, err)

	users := store.NewUserStore(db)
	sessions := store.NewSessionStore(db)

	authSvc, err := NewAuthService(tokens, users, sessions, AuthConfig{
		AccessTokenTTL:  10 * time.Minute,
		RefreshTokenTTL: time.Hour,
		Clock:           clock.Now,
		Events:          publisher,
	})
	require.NoError(t, err)

	manager, err := NewSessionService(users, sessions, SessionConfig{
		Clock:  clock.Now,
		Events: publisher,
	})
	require.NoError(t, err)

	return &testEnv{
		clock:    clock,
		tokens:   tokens,
		users:    users,
		sessions: sessions,
		auth:     authSvc,
		manager:  manager,
		events:   publisher,
	}
}

func (e *testEnv) createUser(t *testing.T, login string) *models.User {
	t.Helper()

	hash, err := crypto.NewPasswordHasher(bcrypt.MinCost).Hash("password123")
	require.NoError(t, err)

	user := &models.User{
		Login:            login,
		Email:            login + "@example.com",
		PasswordHash:     hash,
		IsEmailConfirmed: true,
	}
	require.NoError(t, e.users.Create(context.Background(), user))
	return user
}

// login opens a session and advances the clock so consecutive logins get
// distinct issue times.
func (e *testEnv) login(t *testing.T, userID, label string) TokenPair {
	t.Helper()

	pair, err := e.auth.Login(context.Background(), LoginInput{
		UserID:      userID,
		DeviceLabel: label,
		IPAddress:   "10.0.0.1",
	})
	require.NoError(t, err)
	e.clock.Advance(time.Second)
	return pair
}

func (e *testEnv) tokenState(t *testing.T, userID string) models.RefreshTokenState {
	t.Helper()
	user, err := e.users.FindByID(context.Background(), userID)
	require.NoError(t, err)
	return user.TokenState()
}
