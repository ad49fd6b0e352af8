package stations

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkpellow/scrapeshifter/internal/chimera"
	"github.com/linkpellow/scrapeshifter/internal/consensus"
	"github.com/linkpellow/scrapeshifter/internal/database"
	"github.com/linkpellow/scrapeshifter/internal/models"
	"github.com/linkpellow/scrapeshifter/internal/pipeline"
	"github.com/linkpellow/scrapeshifter/internal/router"
)

func testRedis(t *testing.T) (*database.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return database.NewRedisFromClient(client), mr
}

// fleetLog records the missions a fake fleet consumed.
type fleetLog struct {
	mu       sync.Mutex
	missions []models.Mission
}

func (l *fleetLog) add(m models.Mission) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.missions = append(l.missions, m)
	return len(l.missions)
}

func (l *fleetLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.missions)
}

func (l *fleetLog) providers() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.missions))
	for i, m := range l.missions {
		out[i] = m.TargetProvider
	}
	return out
}

// startFleet consumes chimera:missions and replies per mission. reply gets
// the 1-based mission number; a nil return means the fleet stays silent.
func startFleet(t *testing.T, rdb *database.Redis, reply func(n int, m models.Mission) map[string]any) *fleetLog {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := &fleetLog{}
	go func() {
		for ctx.Err() == nil {
			payload, ok, err := rdb.BRPop(ctx, 50*time.Millisecond, "chimera:missions")
			if err != nil || !ok {
				continue
			}
			var m models.Mission
			if json.Unmarshal([]byte(payload), &m) != nil {
				continue
			}
			n := log.add(m)
			if out := reply(n, m); out != nil {
				b, _ := json.Marshal(out)
				_ = rdb.LPush(ctx, "chimera:results:"+m.MissionID, string(b))
			}
		}
	}()
	return log
}

// pauseRecorder captures pause alerts.
type pauseRecorder struct {
	mu     sync.Mutex
	reason string
	waited int
	calls  int
}

func (r *pauseRecorder) SystemPaused(_ context.Context, reason string, waitedSeconds int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reason = reason
	r.waited = waitedSeconds
	r.calls++
}

func newDeepSearch(rdb *database.Redis, timeout time.Duration, alerter PauseAlerter) *DeepSearch {
	bridge := chimera.NewBridge(rdb, "", timeout, nil)
	poison := consensus.NewPoisonTracker(rdb, nil, nil)
	rt := router.New(rdb, poison, nil)
	return NewDeepSearch(rdb, bridge, rt, poison, nil, alerter, nil)
}

func keysWithPrefix(mr *miniredis.Miniredis, prefix string) []string {
	var out []string
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

func TestDeepSearchMergesRawAndPrefixedKeys(t *testing.T) {
	rdb, mr := testRedis(t)
	startFleet(t, rdb, func(n int, m models.Mission) map[string]any {
		return map[string]any{
			"status": "completed", "phone": "+15551234567", "age": 45,
			"income": "$120,000", "email": "jane@acme.io", "vision_confidence": 0.98,
		}
	})
	s := newDeepSearch(rdb, 2*time.Second, nil)
	pctx := newCtx(models.Lead{"linkedinUrl": "https://linkedin.com/in/jane-doe"})

	delta, cond, err := s.Process(context.Background(), pctx)
	require.NoError(t, err)
	assert.Equal(t, pipeline.Continue, cond)

	// Downstream stations key on the raw names, the save layer on chimera_.
	assert.Equal(t, "+15551234567", delta["phone"])
	assert.Equal(t, "+15551234567", delta["chimera_phone"])
	assert.Equal(t, "jane@acme.io", delta["email"])
	assert.Equal(t, "jane@acme.io", delta["chimera_email"])
	assert.Equal(t, float64(45), delta["age"])
	assert.Equal(t, float64(45), delta["chimera_age"])
	assert.Equal(t, "$120,000", delta["income"])
	assert.Equal(t, "$120,000", delta["chimera_income"])

	_, flagged := delta[consensus.FlagNeedsOCRVerify]
	assert.False(t, flagged, "0.98 is above the vision threshold")
	_, flagged = delta[consensus.FlagNeedsReconciliation]
	assert.False(t, flagged, "low-value lead gets no cross-source check")

	assert.Len(t, keysWithPrefix(mr, "poison:p:"), 2, "phone and email both feed the poison tracker")
}

func TestDeepSearchFailsOverToNextProvider(t *testing.T) {
	rdb, _ := testRedis(t)
	fleet := startFleet(t, rdb, func(n int, m models.Mission) map[string]any {
		if n == 1 {
			return nil // first provider never answers
		}
		return map[string]any{"status": "completed", "phone": "+15559876543"}
	})
	s := newDeepSearch(rdb, 200*time.Millisecond, nil)
	pctx := newCtx(models.Lead{"linkedinUrl": "https://linkedin.com/in/jane-doe"})

	delta, cond, err := s.Process(context.Background(), pctx)
	require.NoError(t, err)
	assert.Equal(t, pipeline.Continue, cond)
	assert.Equal(t, "+15559876543", delta["phone"])

	require.Equal(t, 2, fleet.count(), "one invocation spans timeout plus failover")
	providers := fleet.providers()
	assert.NotEqual(t, providers[0], providers[1])
}

func TestDeepSearchSkipsWhileSystemPaused(t *testing.T) {
	rdb, _ := testRedis(t)
	ctx := context.Background()
	require.NoError(t, rdb.Set(ctx, SystemPausedKey, "maintenance", 0))

	alerter := &pauseRecorder{}
	s := newDeepSearch(rdb, time.Second, alerter)
	s.sleep = func(context.Context, time.Duration) {}
	pctx := newCtx(models.Lead{"linkedinUrl": "https://linkedin.com/in/jane-doe"})

	delta, cond, err := s.Process(ctx, pctx)
	require.NoError(t, err)
	assert.Equal(t, pipeline.Continue, cond)
	assert.Nil(t, delta)

	depth, err := rdb.LLen(ctx, "chimera:missions")
	require.NoError(t, err)
	assert.Zero(t, depth, "no mission may be queued while paused")

	assert.Equal(t, 1, alerter.calls)
	assert.Equal(t, "maintenance", alerter.reason)
	assert.Equal(t, 120, alerter.waited)
}

func TestDeepSearchDispatchesAfterUnpause(t *testing.T) {
	rdb, _ := testRedis(t)
	ctx := context.Background()
	require.NoError(t, rdb.Set(ctx, SystemPausedKey, "provider ban wave", 0))

	fleet := startFleet(t, rdb, func(n int, m models.Mission) map[string]any {
		return map[string]any{"status": "completed", "phone": "+15551234567"}
	})
	alerter := &pauseRecorder{}
	s := newDeepSearch(rdb, 2*time.Second, alerter)
	s.sleep = func(context.Context, time.Duration) {
		_ = rdb.Delete(context.Background(), SystemPausedKey)
	}
	pctx := newCtx(models.Lead{"linkedinUrl": "https://linkedin.com/in/jane-doe"})

	delta, cond, err := s.Process(ctx, pctx)
	require.NoError(t, err)
	assert.Equal(t, pipeline.Continue, cond)
	assert.Equal(t, "+15551234567", delta["phone"])
	assert.Equal(t, 1, fleet.count())
	assert.Equal(t, 0, alerter.calls, "an unpause within the wait is not alert-worthy")
}

func TestDeepSearchCrossSourceMismatchFlagsReconciliation(t *testing.T) {
	rdb, mr := testRedis(t)
	startFleet(t, rdb, func(n int, m models.Mission) map[string]any {
		phone := "+15551110000"
		if n > 1 {
			phone = "+15552220000"
		}
		return map[string]any{"status": "completed", "phone": phone}
	})
	s := newDeepSearch(rdb, 2*time.Second, nil)
	pctx := newCtx(models.Lead{
		"linkedinUrl": "https://linkedin.com/in/jane-doe",
		"company":     "Acme",
		"title":       "VP",
	})

	delta, cond, err := s.Process(context.Background(), pctx)
	require.NoError(t, err)
	assert.Equal(t, pipeline.Continue, cond)
	assert.Equal(t, true, delta[consensus.FlagNeedsReconciliation])
	assert.Equal(t, "+15551110000", delta["phone"], "the first reply stays authoritative")

	assert.Len(t, keysWithPrefix(mr, "carrier_health:"), 2,
		"carrier outcomes recorded for both providers")
}
