package router

import (
	"context"
	"testing"

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

// staticBlacklist blocks a fixed set of providers.
type staticBlacklist map[string]bool

func (b staticBlacklist) IsBlacklisted(_ context.Context, provider string) bool {
	return b[provider]
}

// exploit pins the bandit to its greedy arm.
func exploit(r *Router) {
	r.randFloat = func() float64 { return 1.0 }
}

func TestSelectProviderPrefersHigherSuccessRate(t *testing.T) {
	ctx := context.Background()
	r := New(testRedis(t), nil, nil)
	exploit(r)

	for i := 0; i < 10; i++ {
		r.RecordResult(ctx, "ZabaSearch", "default", Outcome{Success: true, LatencyMS: 100})
		r.RecordResult(ctx, "AnyWho", "default", Outcome{Success: false, LatencyMS: 100})
	}

	got := r.SelectProvider(ctx, models.Lead{}, nil, "")
	assert.Equal(t, "ZabaSearch", got)
}

func TestSelectProviderExploresOnEpsilon(t *testing.T) {
	ctx := context.Background()
	r := New(testRedis(t), nil, nil)
	r.randFloat = func() float64 { return 0.0 } // always below epsilon
	r.randIntn = func(n int) int { return n - 1 }

	got := r.SelectProvider(ctx, models.Lead{}, nil, "")
	assert.Contains(t, Magazine, got)
}

func TestSelectProviderSkipsTriedAndBlacklisted(t *testing.T) {
	ctx := context.Background()
	bl := staticBlacklist{"FastPeopleSearch": true}
	r := New(testRedis(t), bl, nil)
	exploit(r)

	tried := map[string]bool{
		"TruePeopleSearch": true,
		"ZabaSearch":       true,
		"SearchPeopleFree": true,
		"ThatsThem":        true,
	}
	got := r.SelectProvider(ctx, models.Lead{}, tried, "")
	assert.Equal(t, "AnyWho", got, "only untried, unblacklisted provider left")
}

func TestSelectProviderFallsBackToDefaultWhenExhausted(t *testing.T) {
	ctx := context.Background()
	r := New(testRedis(t), nil, nil)

	tried := make(map[string]bool, len(Magazine))
	for _, p := range Magazine {
		tried[p] = true
	}
	got := r.SelectProvider(ctx, models.Lead{}, tried, "")
	assert.Equal(t, DefaultProvider, got)
}

func TestSelectProviderPreferredBiasBreaksTies(t *testing.T) {
	ctx := context.Background()
	r := New(testRedis(t), nil, nil)
	exploit(r)

	// No history: every provider scores the neutral 0.5, so the hive hint wins.
	got := r.SelectProvider(ctx, models.Lead{}, nil, "ThatsThem")
	assert.Equal(t, "ThatsThem", got)
}

func TestNextProviderExcludesFailedAndTried(t *testing.T) {
	ctx := context.Background()
	r := New(testRedis(t), nil, nil)

	tried := map[string]bool{"FastPeopleSearch": true}
	got := r.NextProvider(ctx, "TruePeopleSearch", tried)
	assert.Equal(t, "ZabaSearch", got)
}

func TestNextProviderReturnsEmptyWhenExhausted(t *testing.T) {
	ctx := context.Background()
	r := New(testRedis(t), nil, nil)

	tried := make(map[string]bool, len(Magazine))
	for _, p := range Magazine {
		tried[p] = true
	}
	assert.Equal(t, "", r.NextProvider(ctx, "TruePeopleSearch", tried))
}

func TestRecordResultAccumulatesHealth(t *testing.T) {
	ctx := context.Background()
	r := New(testRedis(t), nil, nil)

	r.RecordResult(ctx, "ZabaSearch", "default", Outcome{Success: true, LatencyMS: 1000, CaptchaSolved: true})
	r.RecordResult(ctx, "ZabaSearch", "default", Outcome{Success: false, LatencyMS: 2000})

	h := r.Health(ctx, "ZabaSearch")
	assert.Equal(t, int64(2), h.Attempts)
	assert.Equal(t, int64(1), h.Successes)
	assert.Equal(t, int64(1), h.CaptchaSolves)
	assert.InDelta(t, 0.5, h.SuccessRate(), 1e-9)
	// EMA: 1000*(1-0.2) + 2000*0.2 = 1200.
	assert.InDelta(t, 1200, h.AvgLatencyMS, 0.5)
}

func TestHealthUnknownProviderIsNeutral(t *testing.T) {
	r := New(testRedis(t), nil, nil)
	h := r.Health(context.Background(), "NeverSeen")
	assert.Equal(t, int64(0), h.Attempts)
	assert.InDelta(t, 0.5, h.SuccessRate(), 1e-9)
}

func TestLeadState(t *testing.T) {
	r := New(testRedis(t), nil, nil)
	assert.Equal(t, "default", r.LeadState(models.Lead{}))
	assert.Equal(t, "acme|miami", r.LeadState(models.Lead{"company": "Acme", "city": "Miami"}))
}

func TestProviderDomain(t *testing.T) {
	assert.Equal(t, "truepeoplesearch.com", ProviderDomain("TruePeopleSearch"))
	assert.Equal(t, "someprovider.com", ProviderDomain("Some Provider"))
	assert.True(t, InMagazine("AnyWho"))
	assert.False(t, InMagazine("someprovider"))
}

func TestPreferredCarrier(t *testing.T) {
	ctx := context.Background()
	r := New(testRedis(t), nil, nil)
	domain := "truepeoplesearch.com"

	// Below the minimum attempts everything reads as default.
	r.RecordCarrierResult(ctx, domain, "att", true)
	assert.Equal(t, DefaultCarrier, r.PreferredCarrier(ctx, domain))

	for i := 0; i < 4; i++ {
		r.RecordCarrierResult(ctx, domain, "att", true)
		r.RecordCarrierResult(ctx, domain, "verizon", false)
	}
	require.Equal(t, "att", r.PreferredCarrier(ctx, domain))
}

func TestRecordCarrierResultDefaultsEmptyCarrier(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	r := New(rdb, nil, nil)

	r.RecordCarrierResult(ctx, "zabasearch.com", "", true)

	members, err := rdb.SMembers(ctx, "carriers:zabasearch.com")
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultCarrier}, members)
}
