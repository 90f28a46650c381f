package auth

import (
	"context"
	"errors"

	"github.com/charlesng35/sessiond/internal/models"
	"github.com/charlesng35/sessiond/internal/store"
)

const maxTokenStateAttempts = 3

// tokenStateFunc derives the next refresh token state from the current one.
// It is re-run against a freshly loaded account after every lost race.
type tokenStateFunc func(user *models.User, current models.RefreshTokenState) (models.RefreshTokenState, error)

// updateTokenState loads the account, applies fn and stores the result with a
// compare-and-swap on the account's token version.
func updateTokenState(ctx context.Context, users UserStore, userID string, fn tokenStateFunc) (*models.User, error) {
	for attempt := 0; attempt < maxTokenStateAttempts; attempt++ {
		user, err := users.FindByID(ctx, userID)
		if err != nil {
			return nil, err
		}

		next, err := fn(user, user.TokenState())
		if err != nil {
			return nil, err
		}

		err = users.SaveRefreshTokens(ctx, user, next)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
	}
	return nil, errTokenStateContended
}
