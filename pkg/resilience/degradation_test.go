package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapStore 测试用内存存储
type mapStore struct {
	data    map[string][]byte
	ttls    map[string]time.Duration
	failGet bool
}

func newMapStore() *mapStore {
	return &mapStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (s *mapStore) GetBytes(_ context.Context, key string) ([]byte, error) {
	if s.failGet {
		return nil, errors.New("backend down")
	}
	v, ok := s.data[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return v, nil
}

func (s *mapStore) SetBytes(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.data[key] = value
	s.ttls[key] = ttl
	return nil
}

type monthTotal struct {
	Month string `json:"month"`
	Total int    `json:"total"`
}

func failing(context.Context) ([]monthTotal, error) {
	return nil, errors.New("upstream down")
}

func TestSafeFetch_LiveStoresLastGood(t *testing.T) {
	store := newMapStore()
	live := []monthTotal{{Month: "Jan", Total: 4}}

	res := SafeFetch(context.Background(), store, "lastgood::users", 300*time.Second,
		func(context.Context) ([]monthTotal, error) { return live, nil }, nil)

	assert.Equal(t, SourceLive, res.Source)
	assert.NoError(t, res.Err)
	assert.False(t, res.Degraded())
	assert.Equal(t, live, res.Value)
	assert.JSONEq(t, `[{"month":"Jan","total":4}]`, string(store.data["lastgood::users"]))
	assert.Equal(t, 300*time.Second, store.ttls["lastgood::users"])
}

func TestSafeFetch_FailureReturnsPrimedValue(t *testing.T) {
	store := newMapStore()
	primed := []monthTotal{{Month: "Feb", Total: 9}, {Month: "Mar", Total: 0}}
	data, err := json.Marshal(primed)
	require.NoError(t, err)
	store.data["lastgood::users"] = data

	res := SafeFetch(context.Background(), store, "lastgood::users", time.Minute, failing, []monthTotal{})

	assert.Equal(t, SourceStale, res.Source)
	assert.Error(t, res.Err)
	assert.Equal(t, primed, res.Value)
}

func TestSafeFetch_FailureWithoutPrimedReturnsDefault(t *testing.T) {
	def := []monthTotal{{Month: "—", Total: 0}}

	res := SafeFetch(context.Background(), newMapStore(), "lastgood::none", time.Minute, failing, def)

	assert.Equal(t, SourceDefault, res.Source)
	assert.Error(t, res.Err)
	assert.Equal(t, def, res.Value)
}

func TestSafeFetch_StoreErrorsDegradeToDefault(t *testing.T) {
	store := newMapStore()
	store.failGet = true

	res := SafeFetch(context.Background(), store, "k", time.Minute, failing, []monthTotal{})
	assert.Equal(t, SourceDefault, res.Source)
	assert.Equal(t, []monthTotal{}, res.Value)

	res = SafeFetch(context.Background(), nil, "k", time.Minute, failing, nil)
	assert.Equal(t, SourceDefault, res.Source)
}

func TestSafeFetch_PanicIsSwallowed(t *testing.T) {
	res := SafeFetch(context.Background(), newMapStore(), "k", time.Minute,
		func(context.Context) (int, error) { panic("bad payload") }, 42)

	assert.Equal(t, SourceDefault, res.Source)
	assert.Equal(t, 42, res.Value)
	assert.ErrorContains(t, res.Err, "bad payload")
}

func TestDegradationTracker(t *testing.T) {
	tr := NewDegradationTracker()
	assert.Equal(t, LevelNormal, tr.Level())

	tr.Record("usersLast5", SourceLive, nil)
	tr.Record("supportLast5", SourceLive, nil)
	assert.Equal(t, LevelNormal, tr.Level())
	assert.Empty(t, tr.Degraded())

	tr.Record("supportLast5", SourceStale, errors.New("503"))
	assert.Equal(t, LevelPartial, tr.Level())

	degraded := tr.Degraded()
	require.Len(t, degraded, 1)
	assert.Equal(t, "supportLast5", degraded[0].Feature)
	assert.Equal(t, "503", degraded[0].LastError)

	tr.Record("usersLast5", SourceDefault, errors.New("timeout"))
	assert.Equal(t, LevelFull, tr.Level())
	assert.Equal(t, "full", tr.Level().String())
}

func TestSourceMarshal(t *testing.T) {
	out, err := json.Marshal(map[string]Source{"a": SourceLive, "b": SourceStale, "c": SourceDefault})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"live","b":"stale","c":"default"}`, string(out))
}
