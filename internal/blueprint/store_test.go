package blueprint

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
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

// memRepo records upserts.
type memRepo struct {
	upserts map[string]map[string]any
	err     error
}

func (r *memRepo) Upsert(_ context.Context, domain string, bp map[string]any, _ string) error {
	if r.err != nil {
		return r.err
	}
	if r.upserts == nil {
		r.upserts = make(map[string]map[string]any)
	}
	r.upserts[domain] = bp
	return nil
}

// scriptedMapper simulates the auto-mapper: on success it commits a blueprint
// through the store it was given.
type scriptedMapper struct {
	store  *Store
	bp     map[string]any
	err    error
	called int
}

func (m *scriptedMapper) AttemptAutoMap(ctx context.Context, domain string) (bool, error) {
	m.called++
	if m.err != nil {
		return false, m.err
	}
	if m.bp == nil {
		return false, nil
	}
	return true, m.store.Commit(ctx, domain, m.bp, "auto")
}

func TestLoadPrimaryKey(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	s := NewStore(rdb, nil, nil, "", nil)

	bp := map[string]any{"url": "https://zabasearch.com", "extraction": map[string]any{"result": ".r"}}
	data, _ := json.Marshal(bp)
	require.NoError(t, rdb.HSet(ctx, "BLUEPRINT:zabasearch.com", map[string]any{"data": string(data)}))

	loaded := s.Load(ctx, "zabasearch.com")
	require.NotNil(t, loaded)
	assert.Equal(t, "https://zabasearch.com", loaded.Blueprint["url"])
}

func TestLoadLegacyKeyAndFieldFallbacks(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	s := NewStore(rdb, nil, nil, "", nil)

	require.NoError(t, rdb.HSet(ctx, "blueprint:anywho.com", map[string]any{
		"blueprint_json": `{"url":"https://anywho.com"}`,
	}))
	loaded := s.Load(ctx, "anywho.com")
	require.NotNil(t, loaded)
	assert.Equal(t, "https://anywho.com", loaded.Blueprint["url"])

	require.NoError(t, rdb.HSet(ctx, "blueprint:thatsthem.com", map[string]any{
		"instructions": `["open","search"]`,
	}))
	loaded = s.Load(ctx, "thatsthem.com")
	require.NotNil(t, loaded)
	assert.Equal(t, "thatsthem.com", loaded.Blueprint["domain"])
	assert.NotNil(t, loaded.Blueprint["instructions"])
}

func TestLoadUnmappedDomainIsNil(t *testing.T) {
	s := NewStore(testRedis(t), nil, nil, "", nil)
	assert.Nil(t, s.Load(context.Background(), "never-mapped.com"))
}

func TestLoadOrMapSignalsDojoWhenUnmapped(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	s := NewStore(rdb, nil, nil, "", nil)

	loaded := s.LoadOrMap(ctx, "zabasearch.com")
	assert.Nil(t, loaded)

	domains, err := s.DomainsNeedingMapping(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"zabasearch.com"}, domains)
}

func TestLoadOrMapUsesAutoMapper(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	s := NewStore(rdb, nil, nil, "", nil)
	mapper := &scriptedMapper{store: s, bp: map[string]any{"url": "https://anywho.com"}}
	s.mapper = mapper

	loaded := s.LoadOrMap(ctx, "anywho.com")
	require.NotNil(t, loaded)
	assert.Equal(t, 1, mapper.called)
	assert.Equal(t, "https://anywho.com", loaded.Blueprint["url"])

	domains, err := s.DomainsNeedingMapping(ctx)
	require.NoError(t, err)
	assert.Empty(t, domains)
}

func TestLoadOrMapMapperFailureFallsBackToDojo(t *testing.T) {
	ctx := context.Background()
	s := NewStore(testRedis(t), nil, nil, "", nil)
	mapper := &scriptedMapper{store: s, err: errors.New("model offline")}
	s.mapper = mapper

	assert.Nil(t, s.LoadOrMap(ctx, "anywho.com"))

	domains, err := s.DomainsNeedingMapping(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"anywho.com"}, domains)
}

func TestCommitWritesEverywhere(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	repo := &memRepo{}
	dir := t.TempDir()
	s := NewStore(rdb, repo, nil, dir, nil)

	// The domain was previously waiting on a mapping session.
	s.RequestMapping(ctx, "zabasearch.com")

	bp := map[string]any{
		"targetUrl": "https://zabasearch.com/people",
		"extraction": map[string]any{
			"name_input": "#name",
			"result":     ".result-card",
		},
	}
	require.NoError(t, s.Commit(ctx, "zabasearch.com", bp, "dojo"))

	// Redis hash is what the loader and scraping core consume.
	fields, err := rdb.HGetAll(ctx, "blueprint:zabasearch.com")
	require.NoError(t, err)
	assert.Equal(t, "#name", fields["name_selector"])
	assert.Equal(t, ".result-card", fields["result_selector"])
	assert.Equal(t, "https://zabasearch.com/people", fields["url"])
	assert.NotEmpty(t, fields["data"])

	// Loader round-trip.
	loaded := s.Load(ctx, "zabasearch.com")
	require.NotNil(t, loaded)

	// Disk copy.
	raw, err := os.ReadFile(filepath.Join(dir, "zabasearch.com.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "targetUrl")

	// Durable copy.
	assert.Contains(t, repo.upserts, "zabasearch.com")

	// Mapping state cleared.
	domains, err := s.DomainsNeedingMapping(ctx)
	require.NoError(t, err)
	assert.Empty(t, domains)
}

func TestCommitSurvivesRepoFailure(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	s := NewStore(rdb, &memRepo{err: errors.New("db down")}, nil, "", nil)

	err := s.Commit(ctx, "anywho.com", map[string]any{"url": "https://anywho.com"}, "api")
	require.NoError(t, err, "Redis is the copy the pipeline reads; DB failure is non-fatal")
	assert.NotNil(t, s.Load(ctx, "anywho.com"))
}

func TestTrauma(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	s := NewStore(rdb, nil, nil, "", nil)

	assert.Equal(t, "", s.Trauma(ctx, "zabasearch.com"))
	s.RecordTrauma(ctx, "zabasearch.com", ".result-card", "selector drift")
	assert.Equal(t, "selector drift", s.Trauma(ctx, "zabasearch.com"))

	// The stored value is a structured record, not a bare string.
	raw, err := rdb.Get(ctx, "trauma:zabasearch.com")
	require.NoError(t, err)
	var rec TraumaRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	assert.Equal(t, ".result-card", rec.Selector)
	assert.Equal(t, "selector drift", rec.Reason)
	assert.NotEmpty(t, rec.TS)
}

func TestTraumaReadsLegacyBareString(t *testing.T) {
	ctx := context.Background()
	rdb := testRedis(t)
	s := NewStore(rdb, nil, nil, "", nil)

	require.NoError(t, rdb.Set(ctx, "trauma:anywho.com", "banned", 0))
	assert.Equal(t, "banned", s.Trauma(ctx, "anywho.com"))
}
