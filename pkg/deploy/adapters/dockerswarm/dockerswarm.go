// Package dockerswarm implements deploy.Backend against a real Docker
// Engine running in Swarm mode, one replicated service per group.
//
// Grounded on
// routing_layer/app/core/controller/deployment_platform.py's
// SwarmDeploymentPlatform: construction validates the daemon is
// reachable, Swarm mode is active, and the local node has manager
// authority (fatal otherwise); deploy_service is a list-then-create
// idempotent check; get_service_url/environment branching come from
// deploy.Base, shared with every backend.
package dockerswarm

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"fmt"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/client"

	"github.com/openfactory/assetstream/pkg/deploy"
	"github.com/openfactory/assetstream/pkg/errors"
)

const routingLayerServiceName = "routing-layer-api"

// Adapter deploys one Swarm service per group via the Docker Engine API.
type Adapter struct {
	deploy.Base
	cli *client.Client
}

// New connects to the Docker daemon and validates the Swarm precondition:
// reachable daemon, active Swarm, and manager authority on this node.
// Any failure here is fatal at construction time (spec §4.5 invariant).
func New(cfg deploy.Config) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, deploy.PreconditionFailed("failed to create docker client", err)
	}

	a := &Adapter{Base: deploy.NewBase(cfg), cli: cli}

	ctx := context.Background()
	if _, err := cli.Ping(ctx); err != nil {
		return nil, deploy.PreconditionFailed("docker daemon unreachable", err)
	}

	info, err := cli.Info(ctx)
	if err != nil {
		return nil, deploy.PreconditionFailed("failed to query docker daemon info", err)
	}
	if info.Swarm.LocalNodeState != swarm.LocalNodeStateActive {
		return nil, deploy.PreconditionFailed("swarm mode is not active on this node", nil)
	}
	if !info.Swarm.ControlAvailable {
		return nil, deploy.PreconditionFailed("this node does not have swarm manager authority", nil)
	}

	return a, nil
}

func (a *Adapter) DeployService(ctx context.Context, group string) error {
	name := a.ServiceName(group)
	exists, err := a.serviceExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	replicas := uint64(1)
	spec := swarm.ServiceSpec{
		Annotations: swarm.Annotations{Name: name, Labels: map[string]string{
			"assetstream.group": group,
			"assetstream.role":  "worker",
		}},
		TaskTemplate: swarm.TaskSpec{
			ContainerSpec: &swarm.ContainerSpec{
				Image: a.Cfg.GroupImage,
				Env:   envSlice(a.ServiceEnv(group)),
			},
			Networks: []swarm.NetworkAttachmentConfig{{Target: a.Cfg.DockerNetwork}},
		},
		Mode: swarm.ServiceMode{
			Replicated: &swarm.ReplicatedService{Replicas: &replicas},
		},
	}

	if a.Cfg.Environment == deploy.EnvironmentLocal {
		port := uint32(a.Cfg.GroupPortBase + hostPortOffsetForGroup(group))
		spec.EndpointSpec = &swarm.EndpointSpec{
			Ports: []swarm.PortConfig{{
				Protocol:      swarm.PortConfigProtocolTCP,
				TargetPort:    5555,
				PublishedPort: port,
			}},
		}
	}

	if _, err := a.cli.ServiceCreate(ctx, spec, swarm.ServiceCreateOptions{}); err != nil {
		return errors.Unavailable("failed to create worker service", err)
	}
	return nil
}

func (a *Adapter) RemoveService(ctx context.Context, group string) error {
	return a.removeServiceNamed(ctx, a.ServiceName(group))
}

func (a *Adapter) DeployRoutingLayerAPI(ctx context.Context) error {
	exists, err := a.serviceExists(ctx, routingLayerServiceName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	replicas := uint64(1)
	spec := swarm.ServiceSpec{
		Annotations: swarm.Annotations{
			Name:   routingLayerServiceName,
			Labels: map[string]string{"assetstream.role": "router"},
		},
		TaskTemplate: swarm.TaskSpec{
			ContainerSpec: &swarm.ContainerSpec{Image: a.Cfg.RoutingLayerImage},
			Networks:      []swarm.NetworkAttachmentConfig{{Target: a.Cfg.DockerNetwork}},
		},
		Mode: swarm.ServiceMode{Replicated: &swarm.ReplicatedService{Replicas: &replicas}},
	}
	if _, err := a.cli.ServiceCreate(ctx, spec, swarm.ServiceCreateOptions{}); err != nil {
		return errors.Unavailable("failed to create routing layer service", err)
	}
	return nil
}

func (a *Adapter) RemoveRoutingLayerAPI(ctx context.Context) error {
	return a.removeServiceNamed(ctx, routingLayerServiceName)
}

func (a *Adapter) IsReady(ctx context.Context) (bool, string) {
	if _, err := a.cli.Ping(ctx); err != nil {
		return false, "docker daemon unreachable: " + err.Error()
	}
	info, err := a.cli.Info(ctx)
	if err != nil {
		return false, "failed to query docker daemon info: " + err.Error()
	}
	if info.Swarm.LocalNodeState != swarm.LocalNodeStateActive {
		return false, "swarm mode is not active"
	}
	return true, ""
}

func (a *Adapter) serviceExists(ctx context.Context, name string) (bool, error) {
	services, err := a.cli.ServiceList(ctx, swarm.ServiceListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return false, errors.Unavailable("failed to list swarm services", err)
	}
	return len(services) > 0, nil
}

func (a *Adapter) removeServiceNamed(ctx context.Context, name string) error {
	services, err := a.cli.ServiceList(ctx, swarm.ServiceListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return errors.Unavailable("failed to list swarm services", err)
	}
	if len(services) == 0 {
		return nil
	}
	if err := a.cli.ServiceRemove(ctx, services[0].ID); err != nil {
		return errors.Unavailable("failed to remove swarm service", err)
	}
	return nil
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

// hostPortOffsetForGroup mirrors deploy.Base.ServiceURL's unexported hash
// so the Swarm adapter publishes the same deterministic port local mode's
// ServiceURL expects.
func hostPortOffsetForGroup(group string) int {
	sum := md5.Sum([]byte(group))
	n := binary.BigEndian.Uint32(sum[:4])
	return int(n % 1000)
}
