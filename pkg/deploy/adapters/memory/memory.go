// Package memory implements deploy.Backend over an in-memory
// container.ContainerRuntime, for tests and for local development without
// a real container orchestrator.
package memory

import (
	"context"
	"sync"

	"github.com/openfactory/assetstream/pkg/compute/container"
	"github.com/openfactory/assetstream/pkg/deploy"
	"github.com/openfactory/assetstream/pkg/errors"
)

const routingLayerServiceName = "routing-layer-api"

// Adapter is a deploy.Backend that creates/removes containers through a
// container.ContainerRuntime instead of talking to a real orchestrator.
type Adapter struct {
	deploy.Base
	runtime container.ContainerRuntime

	mu       sync.Mutex
	services map[string]string // group -> container ID
	routing  string            // routing layer container ID, "" if absent
}

// New creates an Adapter backed by runtime.
func New(cfg deploy.Config, runtime container.ContainerRuntime) *Adapter {
	return &Adapter{
		Base:     deploy.NewBase(cfg),
		runtime:  runtime,
		services: make(map[string]string),
	}
}

func (a *Adapter) DeployService(ctx context.Context, group string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.services[group]; exists {
		return nil
	}

	ctr, err := a.runtime.Create(ctx, container.CreateOptions{
		Name:  a.ServiceName(group),
		Image: a.Cfg.GroupImage,
		Env:   a.ServiceEnv(group),
		Labels: map[string]string{
			"assetstream.group": group,
			"assetstream.role":  "worker",
		},
	})
	if err != nil {
		return errors.Unavailable("failed to create worker service", err)
	}
	if err := a.runtime.Start(ctx, ctr.ID); err != nil {
		return errors.Unavailable("failed to start worker service", err)
	}
	a.services[group] = ctr.ID
	return nil
}

func (a *Adapter) RemoveService(ctx context.Context, group string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	id, exists := a.services[group]
	if !exists {
		return nil
	}
	if err := a.runtime.Remove(ctx, id, true); err != nil {
		return errors.Unavailable("failed to remove worker service", err)
	}
	delete(a.services, group)
	return nil
}

func (a *Adapter) DeployRoutingLayerAPI(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.routing != "" {
		return nil
	}
	ctr, err := a.runtime.Create(ctx, container.CreateOptions{
		Name:   routingLayerServiceName,
		Image:  a.Cfg.RoutingLayerImage,
		Labels: map[string]string{"assetstream.role": "router"},
	})
	if err != nil {
		return errors.Unavailable("failed to create routing layer service", err)
	}
	if err := a.runtime.Start(ctx, ctr.ID); err != nil {
		return errors.Unavailable("failed to start routing layer service", err)
	}
	a.routing = ctr.ID
	return nil
}

func (a *Adapter) RemoveRoutingLayerAPI(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.routing == "" {
		return nil
	}
	if err := a.runtime.Remove(ctx, a.routing, true); err != nil {
		return errors.Unavailable("failed to remove routing layer service", err)
	}
	a.routing = ""
	return nil
}

func (a *Adapter) IsReady(ctx context.Context) (bool, string) {
	return true, ""
}
