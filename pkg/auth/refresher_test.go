package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/StricklySoft/insight-auth/internal/testutil"
	"github.com/StricklySoft/insight-auth/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/insight-auth/pkg/errors"
)

func TestNewKeyRefresher_Defaults(t *testing.T) {
	t.Parallel()
	f, _ := newTestFetcher(t, "http://localhost")

	r := NewKeyRefresher(f, 0, -1)
	assert.Equal(t, DefaultKeyInitialDelay, r.initialDelay)
	assert.Equal(t, DefaultKeyRefreshInterval, r.interval)
}

func TestKeyRefresher_InitialFetchThenPeriodic(t *testing.T) {
	t.Parallel()
	priv := testutil.GenerateRSAKey(t)
	srv := testutil.NewJWKSServer(t, testutil.PublicJWK(t, &priv.PublicKey, fixtures.KeyID, "RS256"))
	f, cache := newTestFetcher(t, srv.URL)

	r := NewKeyRefresher(f, 10*time.Millisecond, 20*time.Millisecond)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(r.Stop)

	require.Eventually(t, func() bool {
		_, ok := cache.Load()
		return ok
	}, 2*time.Second, 5*time.Millisecond, "initial fetch should populate the cache")

	require.Eventually(t, func() bool { return srv.Hits() >= 3 },
		2*time.Second, 5*time.Millisecond, "refresher should keep fetching on its interval")
}

func TestKeyRefresher_StartDoesNotBlock(t *testing.T) {
	t.Parallel()
	srv := testutil.NewJWKSServer(t)
	f, cache := newTestFetcher(t, srv.URL)

	r := NewKeyRefresher(f, time.Hour, time.Hour)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	_, ok := cache.Load()
	assert.False(t, ok, "no key before the initial delay elapses")
	assert.Zero(t, srv.Hits())
}

func TestKeyRefresher_SurvivesServerErrors(t *testing.T) {
	t.Parallel()
	priv := testutil.GenerateRSAKey(t)
	srv := testutil.NewJWKSServer(t, testutil.PublicJWK(t, &priv.PublicKey, fixtures.KeyID, "RS256"))
	srv.SetStatus(http.StatusInternalServerError)
	f, cache := newTestFetcher(t, srv.URL)

	r := NewKeyRefresher(f, 5*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(r.Stop)

	require.Eventually(t, func() bool { return srv.Hits() >= 2 },
		2*time.Second, 5*time.Millisecond, "schedule should continue after failures")
	_, ok := cache.Load()
	assert.False(t, ok)

	srv.SetStatus(http.StatusOK)
	require.Eventually(t, func() bool {
		_, ok := cache.Load()
		return ok
	}, 2*time.Second, 5*time.Millisecond, "a later successful cycle should populate the cache")
}

func TestKeyRefresher_StartTwice(t *testing.T) {
	t.Parallel()
	srv := testutil.NewJWKSServer(t)
	f, _ := newTestFetcher(t, srv.URL)

	r := NewKeyRefresher(f, time.Hour, time.Hour)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	err := r.Start(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeInternalConfiguration)
}

func TestKeyRefresher_StopHaltsSchedule(t *testing.T) {
	t.Parallel()
	priv := testutil.GenerateRSAKey(t)
	srv := testutil.NewJWKSServer(t, testutil.PublicJWK(t, &priv.PublicKey, fixtures.KeyID, "RS256"))
	f, _ := newTestFetcher(t, srv.URL)

	r := NewKeyRefresher(f, time.Millisecond, 5*time.Millisecond)
	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return srv.Hits() >= 1 }, 2*time.Second, time.Millisecond)

	r.Stop()
	hits := srv.Hits()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, hits, srv.Hits(), "no fetches after Stop returns")

	r.Stop()
	require.NoError(t, r.Start(context.Background()), "a stopped refresher can be restarted")
	r.Stop()
}

func TestKeyRefresher_StopsWithParentContext(t *testing.T) {
	t.Parallel()
	srv := testutil.NewJWKSServer(t)
	f, _ := newTestFetcher(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	r := NewKeyRefresher(f, time.Hour, time.Hour)
	require.NoError(t, r.Start(ctx))
	cancel()

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the parent context was cancelled")
	}
}

func TestRefresh_CreatesSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	srv := testutil.NewJWKSServer(t)
	srv.SetStatus(http.StatusServiceUnavailable)
	f, _ := newTestFetcher(t, srv.URL)

	require.Error(t, f.Refresh(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "auth.RefreshKey", spans[0].Name)
	assert.NotEmpty(t, spans[0].Events)
}
