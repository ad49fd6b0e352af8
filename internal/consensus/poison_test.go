package consensus

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkpellow/scrapeshifter/internal/database"
)

func testRedis(t *testing.T) *database.Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return database.NewRedisFromClient(client)
}

// recordingAlerter captures blacklist notifications.
type recordingAlerter struct {
	mu    sync.Mutex
	calls []string
}

func (a *recordingAlerter) ProviderBlacklisted(_ context.Context, provider, reason string, ttlHours int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, fmt.Sprintf("%s/%s/%dh", provider, reason, ttlHours))
}

func TestPoisonThresholdTripsOnFourthDistinctLead(t *testing.T) {
	ctx := context.Background()
	alerter := &recordingAlerter{}
	tracker := NewPoisonTracker(testRedis(t), alerter, nil)

	for i := 1; i <= 3; i++ {
		tripped := tracker.RecordDataPoint(ctx, "ZabaSearch", "phone", "555-123-4567", fmt.Sprintf("lead-%d", i))
		assert.False(t, tripped, "lead %d must not trip the threshold", i)
		assert.False(t, tracker.IsBlacklisted(ctx, "ZabaSearch"))
	}

	tripped := tracker.RecordDataPoint(ctx, "ZabaSearch", "phone", "555-123-4567", "lead-4")
	assert.True(t, tripped)
	assert.True(t, tracker.IsBlacklisted(ctx, "ZabaSearch"))

	require.Len(t, alerter.calls, 1)
	assert.Equal(t, "ZabaSearch/entropy_poison/4h", alerter.calls[0])
}

func TestPoisonRepeatedLeadDoesNotCount(t *testing.T) {
	ctx := context.Background()
	tracker := NewPoisonTracker(testRedis(t), nil, nil)

	// The same lead seeing the same value many times is normal retry noise.
	for i := 0; i < 10; i++ {
		tripped := tracker.RecordDataPoint(ctx, "AnyWho", "email", "x@y.com", "lead-1")
		assert.False(t, tripped)
	}
	assert.False(t, tracker.IsBlacklisted(ctx, "AnyWho"))
}

func TestPoisonDistinctValuesDoNotAccumulate(t *testing.T) {
	ctx := context.Background()
	tracker := NewPoisonTracker(testRedis(t), nil, nil)

	for i := 1; i <= 6; i++ {
		phone := fmt.Sprintf("555-000-%04d", i)
		tripped := tracker.RecordDataPoint(ctx, "ThatsThem", "phone", phone, fmt.Sprintf("lead-%d", i))
		assert.False(t, tripped)
	}
}

func TestPoisonNormalizesValues(t *testing.T) {
	ctx := context.Background()
	tracker := NewPoisonTracker(testRedis(t), nil, nil)

	tracker.RecordDataPoint(ctx, "ZabaSearch", "email", "X@Y.com", "lead-1")
	tracker.RecordDataPoint(ctx, "ZabaSearch", "email", " x@y.com ", "lead-2")
	tracker.RecordDataPoint(ctx, "ZabaSearch", "email", "x@y.com", "lead-3")
	tripped := tracker.RecordDataPoint(ctx, "ZabaSearch", "email", "X@Y.COM", "lead-4")
	assert.True(t, tripped, "case and whitespace variants are the same value")
}

func TestPoisonIgnoresOtherDataTypes(t *testing.T) {
	ctx := context.Background()
	tracker := NewPoisonTracker(testRedis(t), nil, nil)

	for i := 1; i <= 6; i++ {
		tripped := tracker.RecordDataPoint(ctx, "AnyWho", "age", "44", fmt.Sprintf("lead-%d", i))
		assert.False(t, tripped, "ages repeat naturally and never poison")
	}
}

func TestPoisonIgnoresEmptyValues(t *testing.T) {
	ctx := context.Background()
	tracker := NewPoisonTracker(testRedis(t), nil, nil)
	assert.False(t, tracker.RecordDataPoint(ctx, "AnyWho", "phone", "   ", "lead-1"))
}

func TestBlacklistIsScopedPerProvider(t *testing.T) {
	ctx := context.Background()
	tracker := NewPoisonTracker(testRedis(t), nil, nil)

	tracker.Blacklist(ctx, "ZabaSearch", "manual")
	assert.True(t, tracker.IsBlacklisted(ctx, "ZabaSearch"))
	assert.False(t, tracker.IsBlacklisted(ctx, "AnyWho"))
}
