package billing

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cutsync/handler"
)

func TestUserIDFromContext(t *testing.T) {
	t.Parallel()

	t.Run("set by middleware", func(t *testing.T) {
		id := uuid.New()
		got, err := userID(context.WithValue(t.Context(), userIDKey, id))
		require.NoError(t, err)
		assert.Equal(t, id, got)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := userID(t.Context())
		require.ErrorIs(t, err, ErrMissingUserID)

		var httpErr handler.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})

	t.Run("nil id", func(t *testing.T) {
		_, err := userID(context.WithValue(t.Context(), userIDKey, uuid.Nil))
		assert.ErrorIs(t, err, ErrMissingUserID)
	})
}
