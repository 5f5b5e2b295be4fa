package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
	"github.com/pesio-ai/be-ap-procurement/internal/common/logger"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
	"github.com/pesio-ai/be-ap-procurement/internal/repository/memory"
	"github.com/pesio-ai/be-ap-procurement/internal/service"
)

func TestDirectoryService(t *testing.T) {
	store := memory.New()
	dir := service.NewDirectoryService(store, logger.Nop())
	ctx := context.Background()
	director := as(repository.RoleDirector)

	_, err := dir.Assign(ctx, as(repository.RoleAccountant), repository.RoleAccountant, "u-1", "")
	assert.True(t, errors.IsUnauthorized(err))

	_, err = dir.Assign(ctx, director, "CEO", "u-1", "")
	assert.True(t, errors.IsInvalidInput(err))

	_, err = dir.Assign(ctx, director, repository.RoleAccountant, " ", "")
	assert.True(t, errors.IsInvalidInput(err))

	h, err := dir.Assign(ctx, director, "accountant", "u-2", "u2@example.test")
	require.NoError(t, err)
	assert.Equal(t, repository.RoleAccountant, h.Role)
	assert.Equal(t, enterprise, h.EnterpriseID)

	_, err = dir.Assign(ctx, director, repository.RoleAccountant, "u-1", "")
	require.NoError(t, err)

	holders, err := dir.Holders(ctx, as(repository.RoleBuyer), repository.RoleAccountant)
	require.NoError(t, err)
	require.Len(t, holders, 2)
	assert.Equal(t, "u-1", holders[0].UserID)
	assert.Equal(t, "u2@example.test", holders[1].Email)

	outsider := director
	outsider.EnterpriseID = "ent-2"
	holders, err = dir.Holders(ctx, outsider, repository.RoleAccountant)
	require.NoError(t, err)
	assert.Empty(t, holders)
}
