package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotbed/telemetry-bridge/internal/infrastructure/database"
	"github.com/iotbed/telemetry-bridge/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	require.NoError(t, db.Migrate(context.Background(), migrations.FS))
	return NewSQLiteRepository(db.DB)
}

func TestCreate_GeneratesIDAndTimestamp(t *testing.T) {
	repo := newTestRepo(t)
	entry := &CommandLog{Kind: KindCommand, Topic: "home/smartlight/command", Payload: "ON", Result: ResultSuccess}

	require.NoError(t, repo.Create(context.Background(), entry))
	assert.Regexp(t, `^cmd-[0-9a-f]{8}$`, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestList_NewestFirstWithFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	entries := []*CommandLog{
		{Kind: KindCommand, Topic: "t/cmd", Payload: "ON", Result: ResultSuccess, Broker: "local", CreatedAt: base},
		{Kind: KindBrightness, Topic: "t/brightness", Payload: "128", Result: ResultSuccess, CreatedAt: base.Add(time.Second)},
		{Kind: KindCommand, Topic: "t/cmd", Payload: "OFF", Result: ResultNotConnected, Error: "not connected", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		require.NoError(t, repo.Create(ctx, e))
	}

	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, defaultLimit, all.Limit)
	require.Len(t, all.Commands, 3)
	assert.Equal(t, "OFF", all.Commands[0].Payload)
	assert.Equal(t, "not connected", all.Commands[0].Error)
	assert.Equal(t, "local", all.Commands[2].Broker)
	assert.True(t, all.Commands[2].CreatedAt.Equal(base))

	cmds, err := repo.List(ctx, Filter{Kind: KindCommand})
	require.NoError(t, err)
	assert.Equal(t, 2, cmds.Total)

	failed, err := repo.List(ctx, Filter{Kind: KindCommand, Result: ResultNotConnected})
	require.NoError(t, err)
	require.Len(t, failed.Commands, 1)
	assert.Equal(t, "OFF", failed.Commands[0].Payload)
}

func TestList_Pagination(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &CommandLog{Kind: KindRaw, Topic: "t", Payload: "x", Result: ResultSuccess}))
	}

	page, err := repo.List(ctx, Filter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Commands, 1)

	clamped, err := repo.List(ctx, Filter{Limit: 1000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, maxLimit, clamped.Limit)
	assert.Equal(t, 0, clamped.Offset)
}

func TestList_Empty(t *testing.T) {
	repo := newTestRepo(t)
	res, err := repo.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.NotNil(t, res.Commands)
	assert.Empty(t, res.Commands)
}
