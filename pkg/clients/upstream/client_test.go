package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opsdashboard/pkg/cache"
)

// fakeUpstream 模拟上游 API：登录返回递增 token，GET 按脚本返回状态码
type fakeUpstream struct {
	t *testing.T

	mu        sync.Mutex
	statuses  []int
	headers   map[int]http.Header
	body      string
	logins    int32
	gets      int32
	authSeen  []string
	querySeen []string
	loginFail bool
}

func (f *fakeUpstream) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(LoginPath, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.logins, 1)
		if f.loginFail {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var creds Credentials
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(f.t, "admin@example.com", creds.Email)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"isSuccess": true,
			"payload":   map[string]any{"token": "tok-" + string(rune('0'+n))},
		})
	})
	mux.HandleFunc("/admin/dashboard/", func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&f.gets, 1))
		f.mu.Lock()
		f.authSeen = append(f.authSeen, r.Header.Get("Authorization"))
		f.querySeen = append(f.querySeen, r.URL.RawQuery)
		status := http.StatusOK
		if n <= len(f.statuses) {
			status = f.statuses[n-1]
		}
		for k, v := range f.headers[n] {
			w.Header()[k] = v
		}
		f.mu.Unlock()

		w.WriteHeader(status)
		if status == http.StatusOK {
			body := f.body
			if body == "" {
				body = `{"isSuccess":true,"payload":[]}`
			}
			_, _ = w.Write([]byte(body))
		}
	})
	return mux
}

type testEnv struct {
	up     *fakeUpstream
	client *Client
	tokens *TokenManager
	cache  *cache.MemoryCache
	slept  []time.Duration
}

func newTestEnv(t *testing.T, up *fakeUpstream, cfgMut ...func(*Config)) *testEnv {
	t.Helper()
	up.t = t
	srv := httptest.NewServer(up.handler())
	t.Cleanup(srv.Close)

	env := &testEnv{up: up}
	env.tokens = NewTokenManager(srv.URL, Credentials{Email: "admin@example.com", Password: "secret"}, srv.Client(), zap.NewNop())
	env.cache = cache.NewMemoryCache(cache.DefaultOptions(), 0)

	cfg := DefaultConfig(srv.URL)
	for _, m := range cfgMut {
		m(&cfg)
	}
	var mu sync.Mutex
	env.client = NewClient(cfg, env.tokens, env.cache, zap.NewNop(),
		WithHTTPClient(srv.Client()),
		WithRand(func() float64 { return 0 }),
		WithSleep(func(_ context.Context, d time.Duration) error {
			mu.Lock()
			env.slept = append(env.slept, d)
			mu.Unlock()
			return nil
		}),
	)
	return env
}

func TestGetJSON_RetriesTransientThenSucceeds(t *testing.T) {
	env := newTestEnv(t, &fakeUpstream{statuses: []int{503, 503, 200}})

	data, err := env.client.GetJSON(context.Background(), "/admin/dashboard/user-chart", nil, GetOptions{MaxRetries: 5})

	require.NoError(t, err)
	assert.JSONEq(t, `{"isSuccess":true,"payload":[]}`, string(data))
	assert.EqualValues(t, 3, env.up.gets)
	assert.EqualValues(t, 1, env.up.logins)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, env.slept)
}

func TestGetJSON_ExhaustsRetries(t *testing.T) {
	env := newTestEnv(t, &fakeUpstream{statuses: []int{503, 503, 503, 503, 503, 200}})

	_, err := env.client.GetJSON(context.Background(), "/admin/dashboard/user-chart", nil, GetOptions{MaxRetries: 5})

	require.Error(t, err)
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusServiceUnavailable, ue.StatusCode)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.EqualValues(t, 5, env.up.gets)
	assert.Len(t, env.slept, 4)
}

func TestGetJSON_NonTransientFailsImmediately(t *testing.T) {
	env := newTestEnv(t, &fakeUpstream{statuses: []int{404}})

	_, err := env.client.GetJSON(context.Background(), "/admin/dashboard/user-chart", nil, GetOptions{})

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusNotFound, ue.StatusCode)
	assert.EqualValues(t, 1, env.up.gets)
	assert.Empty(t, env.slept)
}

func TestGetJSON_HonorsRetryAfter(t *testing.T) {
	up := &fakeUpstream{
		statuses: []int{429, 502, 200},
		headers: map[int]http.Header{
			1: {"Retry-After": []string{"3"}},
			2: {"Retry-After": []string{"Wed, 21 Oct 2026 07:28:00 GMT"}},
		},
	}
	env := newTestEnv(t, up)

	_, err := env.client.GetJSON(context.Background(), "/admin/dashboard/support-chart", nil, GetOptions{})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Second, 2 * time.Second}, env.slept)
}

func TestGetJSON_RefreshesTokenOn401(t *testing.T) {
	env := newTestEnv(t, &fakeUpstream{statuses: []int{401, 200}})

	// 预先登录，拿到 tok-1
	tok, err := env.tokens.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.AccessToken)

	_, err = env.client.GetJSON(context.Background(), "/admin/dashboard/user-chart", nil, GetOptions{})
	require.NoError(t, err)

	assert.EqualValues(t, 2, env.up.logins)
	assert.EqualValues(t, 2, env.up.gets)
	assert.Equal(t, []string{"Bearer tok-1", "Bearer tok-2"}, env.up.authSeen)
	assert.Empty(t, env.slept)
}

func TestGetJSON_LoginFailureIsAuthError(t *testing.T) {
	env := newTestEnv(t, &fakeUpstream{loginFail: true})

	_, err := env.client.GetJSON(context.Background(), "/admin/dashboard/user-chart", nil, GetOptions{})

	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusForbidden, ae.StatusCode)
	assert.ErrorIs(t, err, ErrAuth)
	assert.EqualValues(t, 0, env.up.gets)
}

func TestGetJSON_InvalidJSONIsParseError(t *testing.T) {
	env := newTestEnv(t, &fakeUpstream{body: "<html>oops</html>"})

	_, err := env.client.GetJSON(context.Background(), "/admin/dashboard/user-chart", nil, GetOptions{TTL: time.Minute})

	assert.ErrorIs(t, err, ErrParse)
	// 解析失败的响应不缓存
	_, cErr := env.cache.GetBytes(context.Background(), CacheKey(env.client.baseURL+"/admin/dashboard/user-chart", nil))
	assert.ErrorIs(t, cErr, cache.ErrCacheMiss)
}

func TestGetJSON_CachesWithTTL(t *testing.T) {
	env := newTestEnv(t, &fakeUpstream{})
	ctx := context.Background()
	params := map[string]string{"period": "am", "licenseKey": "LK-1"}

	first, err := env.client.GetJSON(ctx, "/admin/dashboard/get-most-active-days", params, GetOptions{TTL: time.Minute})
	require.NoError(t, err)
	second, err := env.client.GetJSON(ctx, "/admin/dashboard/get-most-active-days",
		map[string]string{"licenseKey": "LK-1", "period": "am"}, GetOptions{TTL: time.Minute})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, env.up.gets)
	assert.Equal(t, []string{"licenseKey=LK-1&period=am"}, env.up.querySeen)

	// TTL 为 0 时不读缓存
	_, err = env.client.GetJSON(ctx, "/admin/dashboard/get-most-active-days", params, GetOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, env.up.gets)
}

func TestGetJSON_ContextCancelledDuringBackoff(t *testing.T) {
	up := &fakeUpstream{statuses: []int{503, 503}}
	up.t = t
	srv := httptest.NewServer(up.handler())
	defer srv.Close()

	tokens := NewTokenManager(srv.URL, Credentials{Email: "admin@example.com"}, srv.Client(), nil)
	client := NewClient(DefaultConfig(srv.URL), tokens, nil, nil, WithHTTPClient(srv.Client()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.GetJSON(ctx, "/admin/dashboard/user-chart", nil, GetOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 1, up.gets)
}

func TestGetJSON_CircuitBreakerOpens(t *testing.T) {
	statuses := make([]int, 20)
	for i := range statuses {
		statuses[i] = 500
	}
	env := newTestEnv(t, &fakeUpstream{statuses: statuses}, func(c *Config) { c.CircuitBreaker = true })

	for i := 0; i < 5; i++ {
		_, err := env.client.GetJSON(context.Background(), "/admin/dashboard/user-chart", nil, GetOptions{})
		require.Error(t, err)
	}

	_, err := env.client.GetJSON(context.Background(), "/admin/dashboard/user-chart", nil, GetOptions{})
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.True(t, errors.Is(err, ErrUpstream))
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.EqualValues(t, 5, env.up.gets)
}

func TestGetJSON_CancelledCallsDoNotTripBreaker(t *testing.T) {
	env := newTestEnv(t, &fakeUpstream{}, func(c *Config) { c.CircuitBreaker = true })
	_, err := env.tokens.Token(context.Background())
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 6; i++ {
		_, err := env.client.GetJSON(cancelled, "/admin/dashboard/user-chart", nil, GetOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	}

	_, err = env.client.GetJSON(context.Background(), "/admin/dashboard/user-chart", nil, GetOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, env.up.gets)
}
