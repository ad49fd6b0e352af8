package runs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkpellow/scrapeshifter/internal/database"
	"github.com/linkpellow/scrapeshifter/internal/models"
	"github.com/linkpellow/scrapeshifter/internal/pipeline"
)

func testRegistry(t *testing.T) (*Registry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRegistry(database.NewRedisFromClient(client), nil), mr
}

func TestRegistryLifecycle(t *testing.T) {
	ctx := context.Background()
	reg, _ := testRegistry(t)

	runID, err := reg.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	rec, err := reg.Get(ctx, runID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.RunStatusRunning, rec.Status)

	reg.SetProgress(ctx, runID, pipeline.ProgressEvent{Type: pipeline.EventStation, Station: "Identity Resolution"})
	rec, err = reg.Get(ctx, runID)
	require.NoError(t, err)
	assert.Contains(t, rec.Progress, "Identity Resolution")

	reg.Finish(ctx, runID, map[string]any{"success": true})
	rec, err = reg.Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusDone, rec.Status)
	assert.Contains(t, rec.Result, "success")
}

func TestRegistryFail(t *testing.T) {
	ctx := context.Background()
	reg, _ := testRegistry(t)

	runID, err := reg.Create(ctx)
	require.NoError(t, err)

	reg.Fail(ctx, runID, "run cancelled")
	rec, err := reg.Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusError, rec.Status)
	assert.Equal(t, "run cancelled", rec.Error)
}

func TestRegistryUnknownRunIsNil(t *testing.T) {
	reg, _ := testRegistry(t)
	rec, err := reg.Get(context.Background(), "01JNEVEREXISTED")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRegistryRunExpires(t *testing.T) {
	ctx := context.Background()
	reg, mr := testRegistry(t)

	runID, err := reg.Create(ctx)
	require.NoError(t, err)

	mr.FastForward(RunTTL + time.Minute)

	rec, err := reg.Get(ctx, runID)
	require.NoError(t, err)
	assert.Nil(t, rec, "expired runs read as unknown")
}

func TestRegistryIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	reg, _ := testRegistry(t)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id, err := reg.Create(ctx)
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
