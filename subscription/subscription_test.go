//go:build cgo
// +build cgo

package subscription

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestStore(t *testing.T) *Store {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return New(db)
}

func TestCreateAndFindByNameOrAlias(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	sub, err := store.Create(ctx, Subscription{
		UserScope:   "default",
		DisplayName: "老番茄",
		Aliases:     StringSlice{"laofanqie"},
		Platform:    "bilibili",
		EntityType:  "bilibili_uploader",
		Identifiers: StringMap{"uid": "546195"},
	})
	require.NoError(t, err)
	assert.NotZero(t, sub.ID)

	found, ok, err := store.FindByNameOrAlias(ctx, "default", "bilibili", "bilibili_uploader", "老番茄")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "546195", found.Identifiers["uid"])

	byAlias, ok, err := store.FindByNameOrAlias(ctx, "default", "bilibili", "bilibili_uploader", "laofanqie")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sub.ID, byAlias.ID)

	_, ok, err = store.FindByNameOrAlias(ctx, "default", "bilibili", "bilibili_uploader", "someone else")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindByNameOrAliasFiltersByEntityType(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, Subscription{
		UserScope: "default", DisplayName: "same-name", Platform: "github", EntityType: "repo",
		Identifiers: StringMap{"owner": "golang", "repo": "go"},
	})
	require.NoError(t, err)

	_, ok, err := store.FindByNameOrAlias(ctx, "default", "github", "user", "same-name")
	require.NoError(t, err)
	assert.False(t, ok, "a subscription under a different entity_type must not match")
}

func TestWriteNotifiesOnWriteHook(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var notified []string
	store.OnWrite = func(ctx context.Context, op WriteOp, s Subscription) {
		notified = append(notified, string(op)+":"+s.DisplayName)
	}

	sub, err := store.Create(ctx, Subscription{UserScope: "default", DisplayName: "a", Platform: "p", EntityType: "t"})
	require.NoError(t, err)

	sub.DisplayName = "a-renamed"
	_, err = store.Update(ctx, sub)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, sub.ID))

	assert.Equal(t, []string{"create:a", "update:a-renamed", "delete:a-renamed"}, notified)
}

func TestListFiltersByPlatform(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, Subscription{UserScope: "default", DisplayName: "a", Platform: "bilibili", EntityType: "t"})
	require.NoError(t, err)
	_, err = store.Create(ctx, Subscription{UserScope: "default", DisplayName: "b", Platform: "github", EntityType: "t"})
	require.NoError(t, err)

	subs, err := store.List(ctx, "default", "bilibili")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "a", subs[0].DisplayName)
}
