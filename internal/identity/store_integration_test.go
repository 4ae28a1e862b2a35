//go:build integration

package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
	"roster/pkg/requestcontext"
	"roster/pkg/testutil/containers"
)

func TestPostgresDirectory(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	ctx := requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, pg.TruncateTables(ctx, "children"))
	dir := NewDirectory(NewPostgresStore(pg.DB))

	parent, stranger := id.UserID(uuid.New()), id.UserID(uuid.New())
	birthday := time.Date(2018, 6, 2, 0, 0, 0, 0, time.UTC)

	child, err := dir.AddChild(ctx, parent, AddChildRequest{FirstName: "Ada", LastName: "Doe", Birthday: &birthday})
	require.NoError(t, err)

	t.Run("resolves under the parent", func(t *testing.T) {
		found, err := dir.ChildOf(ctx, parent, child.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada", found.FirstName)
		require.NotNil(t, found.Birthday)
		assert.Equal(t, birthday.Format(time.DateOnly), found.Birthday.Format(time.DateOnly))
	})

	t.Run("scoped to the parent", func(t *testing.T) {
		_, err := dir.ChildOf(ctx, stranger, child.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeChildNotFound))
	})

	t.Run("lists in onboarding order", func(t *testing.T) {
		later := requestcontext.WithTime(ctx, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
		_, err := dir.AddChild(later, parent, AddChildRequest{FirstName: "Bo", LastName: "Doe"})
		require.NoError(t, err)

		children, err := dir.Children(ctx, parent)
		require.NoError(t, err)
		require.Len(t, children, 2)
		assert.Equal(t, "Ada", children[0].FirstName)
		assert.Equal(t, "Bo", children[1].FirstName)
	})
}
