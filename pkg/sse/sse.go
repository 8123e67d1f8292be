// Package sse implements the SSE Endpoint: the worker-side HTTP handler
// that attaches a SubscriberQueue to the registry for the lifetime of one
// client connection and drains it as server-sent events.
//
// Grounded on the EventSourceResponse/event_generator shape in
// original_source/app/api/asset_stream.py, restated over echo.Context and
// a registry.SubscriberQueue instead of an asyncio.Queue bridged from a
// background poller thread.
package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openfactory/assetstream/pkg/errors"
	"github.com/openfactory/assetstream/pkg/logger"
	"github.com/openfactory/assetstream/pkg/registry"
)

// Config controls queue sizing and matching for the endpoint.
type Config struct {
	// MatchMode must agree with the dispatcher's matching mode for the
	// same group; it decides how this endpoint registers its key.
	MatchMode registry.MatchMode

	// QueueCapacity bounds each connection's SubscriberQueue. Defaults to
	// registry.DefaultQueueCapacity.
	QueueCapacity int
}

// Endpoint serves GET /asset_stream against a shared registry.
type Endpoint struct {
	reg *registry.Registry
	cfg Config
}

// New creates an Endpoint bound to reg.
func New(reg *registry.Registry, cfg Config) *Endpoint {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = registry.DefaultQueueCapacity
	}
	return &Endpoint{reg: reg, cfg: cfg}
}

// Handle implements GET /asset_stream?asset_uuid=<A>[&id=<I>] (spec §4.3).
func (e *Endpoint) Handle(c echo.Context) error {
	assetUUID := c.QueryParam("asset_uuid")
	if assetUUID == "" {
		appErr := errors.InvalidArgument("asset_uuid is required", nil)
		return c.JSON(appErr.HTTPStatus(), map[string]string{"error": appErr.Message})
	}
	dataItemID := c.QueryParam("id")

	key := subscriptionKey(e.cfg.MatchMode, assetUUID, dataItemID)
	queue := registry.NewSubscriberQueue(e.cfg.QueueCapacity)
	e.reg.Attach(key, queue)
	defer e.reg.Detach(key, queue)

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-queue.C():
			if !ok {
				return nil
			}
			if dataItemID != "" && !matchesDataItem(payload, dataItemID) {
				continue
			}
			if err := writeEvent(w, payload); err != nil {
				logger.L().WarnContext(ctx, "sse write failed, detaching subscriber",
					"asset_uuid", assetUUID, "id", dataItemID, "error", err)
				return nil
			}
			w.Flush()
		}
	}
}

// writeEvent frames payload as one `asset_update` SSE event (spec §6).
func writeEvent(w http.ResponseWriter, payload []byte) error {
	if _, err := fmt.Fprintf(w, "event: asset_update\ndata: %s\n\n", payload); err != nil {
		return err
	}
	return nil
}

// matchesDataItem reports whether payload's JSON "id" field equals want.
// Malformed payloads never match a filter (they're skipped, not errored:
// the dispatcher treats payloads as opaque and never validates them).
func matchesDataItem(payload []byte, want string) bool {
	var probe struct {
		ID string `json:"id"`
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&probe); err != nil {
		return false
	}
	return probe.ID == want
}

func subscriptionKey(mode registry.MatchMode, assetUUID, dataItemID string) string {
	if mode == registry.MatchExact {
		return assetUUID
	}
	if dataItemID != "" {
		return assetUUID + "|" + dataItemID
	}
	return assetUUID + "|"
}

