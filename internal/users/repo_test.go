package users

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/reviewhub-backend/pkg/db/dbtest"
)

func TestRepositoryCreateAndLookup(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	user, err := repo.Create(ctx, CreateUserDTO{Email: "  Ada@Example.com ", PasswordHash: "hash", Name: " Ada "})
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", user.Email)
	require.Equal(t, "Ada", user.Name)
	require.True(t, user.IsActive)

	found, err := repo.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, user.ID, found.ID)

	now := time.Now().UTC()
	require.NoError(t, repo.UpdateLastLogin(ctx, user.ID, now))
	reloaded, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastLoginAt)

	dto := FromModel(reloaded)
	require.Equal(t, user.ID, dto.ID)
	require.Nil(t, FromModel(nil))
}

func TestRepositoryMissingUserIsNotFound(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()

	_, err := repo.FindByEmail(ctx, "ghost@example.com")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = repo.FindByID(ctx, uuid.New())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryUpdatePasswordHash(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()

	user, err := repo.Create(ctx, CreateUserDTO{Email: "b@example.com", PasswordHash: "old", Name: "B"})
	require.NoError(t, err)
	require.NoError(t, repo.UpdatePasswordHash(ctx, user.ID, "new"))

	reloaded, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "new", reloaded.PasswordHash)
}
