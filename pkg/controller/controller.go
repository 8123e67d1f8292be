// Package controller implements the Routing Controller: the control
// plane that materializes a group-scoped topic and worker service per
// group, resolves asset identifiers to worker URLs, and aggregates
// readiness across the grouping strategy, the deployment backend and
// every active worker.
//
// Grounded on
// routing_layer/app/core/controller/routing_controller.py's
// RoutingController: deploy/teardown ordering (topic before worker,
// worker before topic on teardown), resolve's group_for_asset ->
// service_url chain, and is_ready's component aggregation all mirror
// that class; lazy mode's per-group coalescing is the Go idiom for its
// asyncio.Lock-per-group dict, using golang.org/x/sync/singleflight
// for in-process coalescing plus pkg/concurrency/distlock for
// cross-process mutual exclusion.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/openfactory/assetstream/pkg/deploy"
	"github.com/openfactory/assetstream/pkg/errors"
	"github.com/openfactory/assetstream/pkg/grouping"

	"github.com/openfactory/assetstream/pkg/concurrency"
	"github.com/openfactory/assetstream/pkg/concurrency/distlock"
)

// maxReadinessProbes bounds how many CheckServiceReady calls IsReady runs
// concurrently, so an is_ready request against hundreds of groups doesn't
// open hundreds of simultaneous HTTP calls to the deployment backend.
const maxReadinessProbes = 8

// Mode selects when worker services are provisioned.
type Mode int

const (
	// ModeEager deploys every known group when Deploy runs. Resolve does
	// not check for a provisioned worker in this mode: a group that appears
	// after Deploy still resolves to its ServiceURL, with no worker behind it.
	ModeEager Mode = iota
	// ModeLazy defers a group's stream+service creation until its first
	// resolve.
	ModeLazy
)

// Config controls the Routing Controller's deployment mode and, for lazy
// mode, the cross-process lock TTL guarding per-group coalescing.
type Config struct {
	Mode Mode

	// LazyLockTTL bounds how long a cross-process deploy lock for a group
	// is held before it expires. Only consulted in ModeLazy.
	LazyLockTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.LazyLockTTL <= 0 {
		c.LazyLockTTL = 30 * time.Second
	}
	return c
}

// Controller is the Routing Controller (spec §4.6): it owns a grouping
// Strategy and a deploy.Backend and orchestrates their lifecycle.
type Controller struct {
	cfg      Config
	strategy grouping.Strategy
	backend  deploy.Backend
	locker   distlock.Locker

	mu     sync.RWMutex
	worker map[string]struct{} // groups with a provisioned worker

	flight singleflight.Group
}

// New builds a Controller. locker may be nil in ModeEager, where no
// cross-process coalescing is ever needed.
func New(strategy grouping.Strategy, backend deploy.Backend, locker distlock.Locker, cfg Config) *Controller {
	return &Controller{
		cfg:      cfg.withDefaults(),
		strategy: strategy,
		backend:  backend,
		locker:   locker,
		worker:   make(map[string]struct{}),
	}
}

// Deploy provisions every known group's topic and worker (spec §4.6). In
// ModeEager this is how workers come into existence; in ModeLazy it is
// optional priming (groups not yet resolved still deploy lazily later).
func (c *Controller) Deploy(ctx context.Context) error {
	groups, err := c.strategy.AllGroups(ctx)
	if err != nil {
		return errors.Unavailable("failed to enumerate groups", err)
	}

	for _, group := range groups {
		if err := c.deployGroup(ctx, group); err != nil {
			return err
		}
	}

	if c.cfg.Mode == ModeEager {
		if err := c.backend.DeployRoutingLayerAPI(ctx); err != nil {
			return err
		}
	}
	return nil
}

// deployGroup creates the group's derived stream, then its worker
// service, in that order (topic-before-worker, spec §4.6 invariant).
func (c *Controller) deployGroup(ctx context.Context, group string) error {
	if err := c.strategy.CreateDerivedStream(ctx, group); err != nil {
		return fmt.Errorf("declaring stream for group %q: %w", group, err)
	}
	if err := c.backend.DeployService(ctx, group); err != nil {
		return fmt.Errorf("deploying worker for group %q: %w", group, err)
	}

	c.mu.Lock()
	c.worker[group] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Teardown reverses Deploy: removes every provisioned group's worker then
// its stream, then the routing layer service.
func (c *Controller) Teardown(ctx context.Context) error {
	groups, err := c.strategy.AllGroups(ctx)
	if err != nil {
		return errors.Unavailable("failed to enumerate groups", err)
	}

	for _, group := range groups {
		if err := c.backend.RemoveService(ctx, group); err != nil {
			return fmt.Errorf("removing worker for group %q: %w", group, err)
		}
		if err := c.strategy.RemoveDerivedStream(ctx, group); err != nil {
			return fmt.Errorf("removing stream for group %q: %w", group, err)
		}

		c.mu.Lock()
		delete(c.worker, group)
		c.mu.Unlock()
	}

	return c.backend.RemoveRoutingLayerAPI(ctx)
}

// Resolve maps an asset identifier to its group's worker URL (spec §4.6).
// found is false when the asset has no group. In ModeLazy, a group seen
// for the first time is deployed on demand, with duplicate concurrent
// resolves for the same group coalesced into exactly one deploy (spec
// invariant 8).
func (c *Controller) Resolve(ctx context.Context, assetUUID string) (url string, found bool, err error) {
	group, found, err := c.strategy.GroupForAsset(ctx, assetUUID)
	if err != nil {
		return "", false, errors.Unavailable("failed to resolve asset group", err)
	}
	if !found {
		return "", false, nil
	}

	if c.cfg.Mode == ModeLazy && !c.hasWorker(group) {
		if err := c.ensureDeployed(ctx, group); err != nil {
			return "", false, err
		}
	}

	return c.backend.ServiceURL(group), true, nil
}

func (c *Controller) hasWorker(group string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.worker[group]
	return ok
}

// ensureDeployed coalesces concurrent lazy deploys of the same group: an
// in-process singleflight.Group collapses duplicate goroutines in this
// process, and (if a Locker was configured) a cross-process distlock
// collapses duplicate deploys across replicas of the Routing Controller.
func (c *Controller) ensureDeployed(ctx context.Context, group string) error {
	_, err, _ := c.flight.Do(group, func() (any, error) {
		if c.hasWorker(group) {
			return nil, nil
		}

		if c.locker != nil {
			lock := c.locker.NewLock("assetstream:deploy:"+group, c.cfg.LazyLockTTL)
			acquired, lerr := lock.Acquire(ctx)
			if lerr != nil {
				return nil, errors.Unavailable("failed to acquire deploy lock", lerr)
			}
			if !acquired {
				// Another replica is deploying this group; this resolve
				// still needs a URL, so wait for the deploy to surface
				// via readiness rather than double-deploying.
				return nil, c.awaitWorker(ctx, group)
			}
			defer lock.Release(ctx)
		}

		if c.hasWorker(group) {
			return nil, nil
		}
		return nil, c.deployGroup(ctx, group)
	})
	return err
}

// awaitWorker polls the group's worker readiness until it reports ready
// or ctx is done, for the case where another replica holds the deploy
// lock for this group.
func (c *Controller) awaitWorker(ctx context.Context, group string) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if ready, _ := c.backend.CheckServiceReady(ctx, group); ready {
			c.mu.Lock()
			c.worker[group] = struct{}{}
			c.mu.Unlock()
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Unavailable("timed out waiting for concurrent deploy", ctx.Err())
		case <-ticker.C:
		}
	}
}

// IsReady aggregates readiness of the grouping strategy, the deployment
// backend, and every active worker (spec §4.6). Overall ready iff every
// sub-readiness is true; issues is empty iff overall is true (spec
// invariant 7).
func (c *Controller) IsReady(ctx context.Context) (bool, map[string]string) {
	issues := make(map[string]string)

	if ready, reason := c.strategy.IsReady(ctx); !ready {
		issues["grouping"] = reason
	}
	if ready, reason := c.backend.IsReady(ctx); !ready {
		issues["deployment_backend"] = reason
	}

	c.mu.RLock()
	groups := make([]string, 0, len(c.worker))
	for group := range c.worker {
		groups = append(groups, group)
	}
	c.mu.RUnlock()

	if len(groups) > 0 {
		var issuesMu sync.Mutex
		poolSize := len(groups)
		if poolSize > maxReadinessProbes {
			poolSize = maxReadinessProbes
		}

		pool := concurrency.NewWorkerPool(poolSize, len(groups))
		pool.Start(ctx)
		for _, group := range groups {
			group := group
			pool.Submit(func(ctx context.Context) {
				if ready, reason := c.backend.CheckServiceReady(ctx, group); !ready {
					issuesMu.Lock()
					issues["worker:"+group] = reason
					issuesMu.Unlock()
				}
			})
		}
		pool.Stop()
	}

	return len(issues) == 0, issues
}
