package db

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/kube-rca/authcore/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySaveAndFind(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	saved, err := m.SaveAccount(ctx, &model.Account{Email: "a@x.com", Name: "A", Role: model.RoleMember})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())

	found, err := m.FindAccountByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, found.ID)

	_, err = m.SaveAccount(ctx, &model.Account{Email: "a@x.com", Role: model.RoleMember})
	require.ErrorIs(t, err, ErrDuplicate)

	_, err = m.FindAccountByEmail(ctx, "missing@x.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRejectsPartialFederation(t *testing.T) {
	m := NewMemory()
	_, err := m.SaveAccount(context.Background(), &model.Account{Email: "a@x.com", Role: model.RoleMember, Provider: "github"})
	require.ErrorIs(t, err, model.ErrPartialFederation)
	assert.Zero(t, m.AccountCount())
}

func TestMemoryUpsertKeepsSingleRecord(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.UpsertRefreshRecord(ctx, "a@x.com", "first"))
	first, err := m.FindRefreshRecord(ctx, "a@x.com")
	require.NoError(t, err)

	require.NoError(t, m.UpsertRefreshRecord(ctx, "a@x.com", "second"))
	second, err := m.FindRefreshRecord(ctx, "a@x.com")
	require.NoError(t, err)

	assert.Equal(t, 1, m.RefreshRecordCount())
	assert.Equal(t, "second", second.Token)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestMemoryConcurrentUpsert(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.UpsertRefreshRecord(ctx, "a@x.com", fmt.Sprintf("token-%d", i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, m.RefreshRecordCount())
}

func TestMemoryDeleteAccountCascades(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.SaveAccount(ctx, &model.Account{Email: "a@x.com", Role: model.RoleMember})
	require.NoError(t, err)
	require.NoError(t, m.UpsertRefreshRecord(ctx, "a@x.com", "tok"))

	require.NoError(t, m.DeleteAccount(ctx, "a@x.com"))

	_, err = m.FindRefreshRecord(ctx, "a@x.com")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, m.DeleteAccount(ctx, "a@x.com"), ErrNotFound)
}
