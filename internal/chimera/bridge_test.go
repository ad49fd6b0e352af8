package chimera

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkpellow/scrapeshifter/internal/database"
	"github.com/linkpellow/scrapeshifter/internal/models"
)

func testRedis(t *testing.T) *database.Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return database.NewRedisFromClient(client)
}

func TestNewMissionCarriesProviderInLead(t *testing.T) {
	b := NewBridge(testRedis(t), "", 0, nil)
	lead := models.Lead{"name": "Jane Doe", "linkedinUrl": "https://linkedin.com/in/janedoe"}

	m := b.NewMission(lead, "ZabaSearch", "att", map[string]any{"url": "x"})

	assert.NotEmpty(t, m.MissionID)
	assert.Equal(t, "deep_search", m.Instruction)
	assert.Equal(t, "linkedin_profile", m.Target)
	assert.Equal(t, "ZabaSearch", m.TargetProvider)
	assert.Equal(t, "ZabaSearch", m.Lead["target_provider"])
	assert.Equal(t, "att", m.Carrier)
	assert.Equal(t, "https://linkedin.com/in/janedoe", m.LinkedInURL)

	// The original lead stays untouched.
	_, ok := lead["target_provider"]
	assert.False(t, ok)
}

func TestDispatchQueuesMissionAndStatus(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	b := NewBridge(rdb, "chimera:missions", time.Second, nil)

	m := b.NewMission(models.Lead{"name": "Jane Doe"}, "AnyWho", "", nil)
	require.NoError(t, b.Dispatch(ctx, m))

	depth, err := b.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)

	payload, ok, err := rdb.BRPop(ctx, time.Second, "chimera:missions")
	require.NoError(t, err)
	require.True(t, ok)

	var decoded models.Mission
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	assert.Equal(t, m.MissionID, decoded.MissionID)

	status, err := b.Status(ctx, m.MissionID)
	require.NoError(t, err)
	assert.Equal(t, "queued", status["status"])
	assert.Equal(t, "AnyWho", status["provider"])
}

func TestAwaitReturnsReply(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	b := NewBridge(rdb, "chimera:missions", 5*time.Second, nil)

	reply := `{"mission_id":"m1","status":"completed","phone":"5551234567","vision_confidence":0.99}`
	require.NoError(t, rdb.LPush(ctx, "chimera:results:m1", reply))

	result, elapsed, err := b.Await(ctx, "m1", nil)
	require.NoError(t, err)
	assert.Equal(t, "5551234567", result.Phone)
	assert.False(t, result.Failed())
	assert.Greater(t, elapsed, time.Duration(0))
	assert.Equal(t, 0.99, result.Raw["vision_confidence"])

	status, err := b.Status(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "done", status["status"])
}

func TestAwaitFailedReplyIsResultNotError(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	b := NewBridge(rdb, "chimera:missions", 5*time.Second, nil)

	require.NoError(t, rdb.LPush(ctx, "chimera:results:m2", `{"status":"failed","error":"captcha wall"}`))

	result, _, err := b.Await(ctx, "m2", nil)
	require.NoError(t, err)
	assert.True(t, result.Failed())
	assert.Equal(t, "captcha wall", result.Error)
	assert.Equal(t, "m2", result.MissionID, "missing mission_id backfilled")
}

func TestAwaitTimesOut(t *testing.T) {
	ctx := context.Background()
	b := NewBridge(testRedis(t), "chimera:missions", 50*time.Millisecond, nil)

	_, _, err := b.Await(ctx, "never", nil)
	require.ErrorIs(t, err, ErrMissionTimeout)
}

func TestAwaitBadReply(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	b := NewBridge(rdb, "chimera:missions", 5*time.Second, nil)

	require.NoError(t, rdb.LPush(ctx, "chimera:results:m3", `"just a string"`))

	_, _, err := b.Await(ctx, "m3", nil)
	require.Error(t, err)

	status, serr := b.Status(ctx, "m3")
	require.NoError(t, serr)
	assert.Equal(t, "bad_reply", status["status"])
}

func TestAwaitDeliversTelemetry(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	b := NewBridge(rdb, "chimera:missions", 5*time.Second, nil)

	require.NoError(t, rdb.LPush(ctx, "chimera:telemetry:m4", "navigating"))
	require.NoError(t, rdb.LPush(ctx, "chimera:telemetry:m4", "extracting"))
	require.NoError(t, rdb.LPush(ctx, "chimera:results:m4", `{"status":"completed"}`))

	var lines []string
	_, _, err := b.Await(ctx, "m4", func(line string) { lines = append(lines, line) })
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestAwaitCleansUpKeys(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	b := NewBridge(rdb, "chimera:missions", 5*time.Second, nil)

	require.NoError(t, rdb.LPush(ctx, "chimera:results:m5", `{"status":"completed"}`))
	require.NoError(t, rdb.LPush(ctx, "chimera:telemetry:m5", "step"))

	_, _, err := b.Await(ctx, "m5", nil)
	require.NoError(t, err)

	n, err := rdb.Exists(ctx, "chimera:telemetry:m5")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
