package grouping_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/openfactory/assetstream/pkg/grouping"
)

// fakeSQL adapts a bare *gorm.DB to sql.SQL for tests, avoiding a
// dependency on any real database/server.
type fakeSQL struct{ db *gorm.DB }

func (f *fakeSQL) Get(ctx context.Context) *gorm.DB                        { return f.db.WithContext(ctx) }
func (f *fakeSQL) GetShard(ctx context.Context, key string) (*gorm.DB, error) { return f.db.WithContext(ctx), nil }
func (f *fakeSQL) Close() error                                            { return nil }

func newTestStrategy(t *testing.T) *grouping.UNSLevelStrategy {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, grouping.Migrate(db))

	seed := []struct{ asset, level, value string }{
		{"A1", "workcenter", "wc1"},
		{"A2", "workcenter", "wc2"},
		{"A3", "workcenter", "wc1"},
	}
	for _, row := range seed {
		require.NoError(t, db.Exec(
			"INSERT INTO asset_uns_map (asset_uuid, level, value) VALUES (?, ?, ?)",
			row.asset, row.level, row.value,
		).Error)
	}

	return grouping.New(&fakeSQL{db: db}, "workcenter")
}

func TestGroupForAsset(t *testing.T) {
	s := newTestStrategy(t)
	ctx := context.Background()

	group, found, err := s.GroupForAsset(ctx, "A1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "wc1", group)

	_, found, err = s.GroupForAsset(ctx, "Ax")
	require.NoError(t, err)
	require.False(t, found, "an ungrouped asset is unroutable, not an error")
}

func TestAllGroups(t *testing.T) {
	s := newTestStrategy(t)
	groups, err := s.AllGroups(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"wc1", "wc2"}, groups)
}

func TestAssetsInGroup(t *testing.T) {
	s := newTestStrategy(t)
	assets, err := s.AssetsInGroup(context.Background(), "wc1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"A1", "A3"}, assets)
}

func TestCreateDerivedStream_Idempotent(t *testing.T) {
	s := newTestStrategy(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDerivedStream(ctx, "wc1"))
	require.NoError(t, s.CreateDerivedStream(ctx, "wc1"), "creating an existing stream must be a no-op")

	require.NoError(t, s.RemoveDerivedStream(ctx, "wc1"))
	require.NoError(t, s.RemoveDerivedStream(ctx, "wc1"), "removing an absent stream must be a no-op")
}

func TestIsReady(t *testing.T) {
	s := newTestStrategy(t)
	ready, reason := s.IsReady(context.Background())
	require.True(t, ready)
	require.Empty(t, reason)
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"Work Center 1!!":  "work-center-1",
		"  --leading":      "leading",
		"trailing--  ":     "trailing",
		"already-sane":     "already-sane",
		"MiXeD_Case__Name": "mixed-case-name",
	}
	for in, want := range cases {
		require.Equal(t, want, grouping.Sanitize(in), "input %q", in)
	}
}

func TestEscapeLiteral(t *testing.T) {
	require.Equal(t, "O''Brien''s", grouping.EscapeLiteral("O'Brien's"))
}
