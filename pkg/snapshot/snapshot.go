// Package snapshot implements the Point-query Adapter: point-in-time
// reads of an asset's latest known value(s) from an external key/value
// projection, by composite key or by asset-level prefix.
//
// Grounded on
// routing_layer/app/api/snapshot.py's get_snapshot endpoint, which reads
// the same projection the grouping strategy and dispatcher write into;
// restated here over pkg/cache.Cache (composite-key Get, prefix Scan)
// rather than a bespoke KV client. Snapshot reads are never cached by
// this adapter; Project writes observed messages into the same store.
package snapshot

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/openfactory/assetstream/pkg/cache"
	"github.com/openfactory/assetstream/pkg/errors"
)

// projectionTTL bounds how long a projected value survives without a
// fresher message refreshing it.
const projectionTTL = time.Hour

// Record is one point-in-time value read from the projection.
type Record struct {
	AssetUUID  string `json:"asset_uuid"`
	DataItemID string `json:"data_item_id"`
	Value      any    `json:"value"`
}

// Adapter reads snapshots from an external projection. It never caches:
// every call issues a fresh read against store.
type Adapter struct {
	store cache.Cache
}

// New builds an Adapter over store.
func New(store cache.Cache) *Adapter {
	return &Adapter{store: store}
}

func compositeKey(assetUUID, dataItemID string) string {
	return assetUUID + "|" + dataItemID
}

// Snapshot reads the latest known value(s) for assetUUID (spec §4.8). If
// dataItemID is non-empty, a single Record is returned for the composite
// key "{asset_uuid}|{data_item_id}". Otherwise every record with prefix
// "{asset_uuid}|" is returned. Returns errors.NotFound when no row
// matches, errors.Unavailable when the projection itself errors.
func (a *Adapter) Snapshot(ctx context.Context, assetUUID, dataItemID string) ([]Record, error) {
	if dataItemID != "" {
		rec, err := a.getOne(ctx, assetUUID, dataItemID)
		if err != nil {
			return nil, err
		}
		return []Record{rec}, nil
	}
	return a.getAll(ctx, assetUUID)
}

func (a *Adapter) getOne(ctx context.Context, assetUUID, dataItemID string) (Record, error) {
	var rec Record
	err := a.store.Get(ctx, compositeKey(assetUUID, dataItemID), &rec)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return Record{}, errors.NotFound("no snapshot for asset/item", err)
		}
		return Record{}, errors.Unavailable("projection read failed", err)
	}
	return rec, nil
}

// Project implements dispatcher.Projector: it writes the message observed
// under a composite routingKey ("asset_uuid|data_item_id") into the same
// projection Snapshot reads from. Non-composite routing keys (exact-match
// groups routed by bare asset_uuid) carry no data_item_id and are skipped.
func (a *Adapter) Project(ctx context.Context, routingKey string, payload []byte) error {
	assetUUID, dataItemID, ok := splitCompositeKey(routingKey)
	if !ok {
		return nil
	}

	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		value = string(payload)
	}

	rec := Record{AssetUUID: assetUUID, DataItemID: dataItemID, Value: value}
	return a.store.Set(ctx, routingKey, rec, projectionTTL)
}

func splitCompositeKey(key string) (assetUUID, dataItemID string, ok bool) {
	idx := strings.Index(key, "|")
	if idx < 0 {
		return "", "", false
	}
	return key[:idx], key[idx+1:], true
}

func (a *Adapter) getAll(ctx context.Context, assetUUID string) ([]Record, error) {
	keys, err := a.store.Scan(ctx, assetUUID+"|")
	if err != nil {
		return nil, errors.Unavailable("projection scan failed", err)
	}
	if len(keys) == 0 {
		return nil, errors.NotFound("no snapshots for asset", nil)
	}

	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		var rec Record
		if err := a.store.Get(ctx, key, &rec); err != nil {
			if errors.Is(err, errors.CodeNotFound) {
				continue // raced with an expiring/removed row, skip it
			}
			return nil, errors.Unavailable("projection read failed", err)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, errors.NotFound("no snapshots for asset", nil)
	}
	return records, nil
}
