package sse_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/openfactory/assetstream/pkg/registry"
	"github.com/openfactory/assetstream/pkg/sse"
)

// TestHandle_MissingAssetUUID covers spec §4.3 step 1.
func TestHandle_MissingAssetUUID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/asset_stream", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	endpoint := sse.New(registry.New(), sse.Config{MatchMode: registry.MatchExact})
	require.NoError(t, endpoint.Handle(c))
	require.Equal(t, 400, rec.Code)
}

// TestHandle_StreamsAndFilters covers scenario S4: a connection scoped to
// one data item only receives payloads whose "id" field matches.
func TestHandle_StreamsAndFilters(t *testing.T) {
	reg := registry.New()
	endpoint := sse.New(reg, sse.Config{MatchMode: registry.MatchExact})

	e := echo.New()
	req := httptest.NewRequest("GET", "/asset_stream?asset_uuid=WTVB01-001&id=temp", nil)
	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	done := make(chan error, 1)
	go func() { done <- endpoint.Handle(c) }()

	require.Eventually(t, func() bool {
		return reg.Len() == 1
	}, time.Second, 5*time.Millisecond, "handler must attach its queue before streaming")

	snapshot := reg.Fanout("WTVB01-001", registry.MatchExact)
	require.Len(t, snapshot, 1)
	queue := snapshot[0]

	require.True(t, queue.TryEnqueue([]byte(`{"id":"avail","value":"AVAILABLE"}`)))
	require.True(t, queue.TryEnqueue([]byte(`{"id":"temp","value":42}`)))

	require.Eventually(t, func() bool {
		return strings.Contains(rec.Body.String(), `"id":"temp"`)
	}, time.Second, 5*time.Millisecond)

	require.NotContains(t, rec.Body.String(), `"id":"avail"`)
	require.Contains(t, rec.Body.String(), "event: asset_update")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not return after context cancellation")
	}

	require.Equal(t, 0, reg.Len(), "queue must be detached on every exit path")
}
