package biz

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opsdashboard/pkg/clients/upstream"
)

type fetchCall struct {
	path   string
	params map[string]string
	opts   upstream.GetOptions
}

// fakeFetcher 按路径返回固定响应；failing 中的路径返回上游错误，hanging 中的路径阻塞到 ctx 结束
type fakeFetcher struct {
	mu      sync.Mutex
	bodies  map[string]string
	failing map[string]bool
	hanging map[string]bool
	calls   []fetchCall
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{bodies: map[string]string{}, failing: map[string]bool{}, hanging: map[string]bool{}}
}

func (f *fakeFetcher) GetJSON(ctx context.Context, path string, params map[string]string, opts upstream.GetOptions) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{path: path, params: params, opts: opts})
	hang := f.hanging[path]
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failing[path] {
		return nil, &upstream.UpstreamError{StatusCode: 503, URL: path, Err: errors.New("service unavailable")}
	}
	if body, ok := f.bodies[path]; ok {
		return json.RawMessage(body), nil
	}
	return json.RawMessage(`{"isSuccess":true,"payload":[]}`), nil
}

func (f *fakeFetcher) setFailing(paths ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = map[string]bool{}
	for _, p := range paths {
		f.failing[p] = true
	}
}

func (f *fakeFetcher) setHanging(paths ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hanging = map[string]bool{}
	for _, p := range paths {
		f.hanging[p] = true
	}
}

func (f *fakeFetcher) call(path string) (fetchCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].path == path {
			return f.calls[i], true
		}
	}
	return fetchCall{}, false
}

func TestMetricUsecase_ParamsAndTTL(t *testing.T) {
	f := newFakeFetcher()
	uc := NewMetricUsecase(f, zap.NewNop())
	ctx := context.Background()

	_, err := uc.UsersLast5(ctx)
	require.NoError(t, err)
	c, ok := f.call(PathUserChart)
	require.True(t, ok)
	assert.Empty(t, c.params)
	assert.Equal(t, time.Minute, c.opts.TTL)

	_, err = uc.VerificationsLast5(ctx, "LK-1")
	require.NoError(t, err)
	c, _ = f.call(PathCarPartVerifyChart)
	assert.Equal(t, map[string]string{"licenseKey": "LK-1"}, c.params)

	_, err = uc.MostActiveDays(ctx, "", "")
	require.NoError(t, err)
	c, _ = f.call(PathMostActiveDays)
	assert.Equal(t, map[string]string{"period": "all"}, c.params)

	_, err = uc.RelatedPartsClickRate(ctx, "", "LK-2")
	require.NoError(t, err)
	c, _ = f.call(PathRelatedPartsClickRate)
	assert.Equal(t, map[string]string{"granularity": "daily", "licenseKey": "LK-2"}, c.params)
	assert.Equal(t, 30*time.Second, c.opts.TTL)

	_, err = uc.TopProblemReasons(ctx, "", "7d")
	require.NoError(t, err)
	c, _ = f.call(PathTopProblemReasons)
	assert.Equal(t, map[string]string{"dateRange": "7d"}, c.params)

	_, err = uc.RecentActivities(ctx, 5, "")
	require.NoError(t, err)
	c, _ = f.call(PathRecentActivities)
	assert.Empty(t, c.params)
	assert.Equal(t, 30*time.Second, c.opts.TTL)
}

func TestMetricUsecase_PropagatesErrors(t *testing.T) {
	f := newFakeFetcher()
	f.setFailing(PathSupportChart)
	f.bodies[PathPartsStats] = `"oops"`
	uc := NewMetricUsecase(f, zap.NewNop())

	_, err := uc.SupportLast5(context.Background(), "")
	assert.ErrorIs(t, err, upstream.ErrUpstream)

	_, err = uc.PartsStats(context.Background(), "")
	assert.ErrorIs(t, err, upstream.ErrParse)
}

func TestMetricUsecase_MostActiveHoursUsesRequestedPeriod(t *testing.T) {
	f := newFakeFetcher()
	f.bodies[PathMostActiveHours] = `{"payload":{"perHour":[]}}`
	uc := NewMetricUsecase(f, zap.NewNop())

	got, err := uc.MostActiveHours(context.Background(), "am", "LK")
	require.NoError(t, err)
	assert.Equal(t, "am", got.Period)
	assert.Len(t, got.PerHour, 24)

	c, _ := f.call(PathMostActiveHours)
	assert.Equal(t, map[string]string{"period": "am", "licenseKey": "LK"}, c.params)
}
