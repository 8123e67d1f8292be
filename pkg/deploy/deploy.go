// Package deploy implements the Deployment Backend: provisioning one
// worker service per group, resolving deterministic worker URLs, and
// probing worker readiness.
//
// Grounded on
// routing_layer/app/core/controller/deployment_platform.py's
// DeploymentPlatform base class — ServiceURL/CheckServiceReady are kept
// concrete here exactly as in the original (only DeployService,
// RemoveService and IsReady vary per backend). The memory adapter builds
// on pkg/compute/container.ContainerRuntime; the dockerswarm adapter
// talks to the Docker Engine API through the Docker SDK client.
package deploy

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/openfactory/assetstream/pkg/errors"
	"github.com/openfactory/assetstream/pkg/grouping"
)

// Environment selects how ServiceURL resolves a group to an address. Only
// the Deployment Backend reads this; it must never leak into the
// dispatcher or the registry (spec §9).
type Environment string

const (
	EnvironmentLocal      Environment = "local"
	EnvironmentDevSwarm   Environment = "devswarm"
	EnvironmentProduction Environment = "production"
)

// Config controls service naming, resource limits and URL resolution.
type Config struct {
	DockerNetwork string `env:"DOCKER_NETWORK" env-default:"assetstream-net"`

	GroupImage           string `env:"FASTAPI_GROUP_IMAGE"`
	GroupReplicas        int    `env:"FASTAPI_GROUP_REPLICAS" env-default:"1"`
	GroupCPULimit        string `env:"FASTAPI_GROUP_CPU_LIMIT"`
	GroupCPUReservation  string `env:"FASTAPI_GROUP_CPU_RESERVATION"`
	GroupPortBase        int    `env:"FASTAPI_GROUP_PORT_BASE" env-default:"5555"`

	RoutingLayerImage          string `env:"ROUTING_LAYER_IMAGE"`
	RoutingLayerReplicas       int    `env:"ROUTING_LAYER_REPLICAS" env-default:"1"`
	RoutingLayerCPULimit       string `env:"ROUTING_LAYER_CPU_LIMIT"`
	RoutingLayerCPUReservation string `env:"ROUTING_LAYER_CPU_RESERVATION"`

	Environment   Environment `env:"ENVIRONMENT" env-default:"local"`
	SwarmNodeHost string      `env:"SWARM_NODE_HOST" env-default:"localhost"`

	KafkaBroker string `env:"KAFKA_BROKER"`

	// ReadyTimeout bounds every HTTP call to a worker's /ready surface.
	ReadyTimeout time.Duration `env:"DEPLOY_READY_TIMEOUT" env-default:"2s"`
}

// ReadinessDocument is the JSON body a worker's /ready endpoint returns.
type ReadinessDocument struct {
	Status string            `json:"status"`
	Issues map[string]string `json:"issues,omitempty"`
}

// Backend is the capability set the Routing Controller depends on (spec
// §4.5). It is the second of the platform's two variation points.
type Backend interface {
	// DeployService creates the group's worker service if it doesn't
	// already exist, injecting the bus bootstrap address, the
	// group-scoped topic, and the consumer-group id.
	DeployService(ctx context.Context, group string) error

	// RemoveService removes the group's worker service. Idempotent on
	// absent.
	RemoveService(ctx context.Context, group string) error

	// DeployRoutingLayerAPI provisions the Router Frontend service.
	DeployRoutingLayerAPI(ctx context.Context) error

	// RemoveRoutingLayerAPI tears down the Router Frontend service.
	RemoveRoutingLayerAPI(ctx context.Context) error

	// ServiceURL deterministically resolves group to its worker's base URL.
	ServiceURL(group string) string

	// CheckServiceReady probes group's worker readiness surface.
	CheckServiceReady(ctx context.Context, group string) (bool, string)

	// IsReady reports the backend's own readiness precondition (e.g.
	// reachable, cluster active, node has management authority).
	IsReady(ctx context.Context) (bool, string)
}

// Base implements the parts of Backend that are identical across
// adapters: service naming, URL resolution and the readiness HTTP probe.
// Concrete adapters embed Base and add DeployService/RemoveService/
// DeployRoutingLayerAPI/RemoveRoutingLayerAPI/IsReady.
type Base struct {
	Cfg Config

	httpClient *http.Client
}

// NewBase wires up Base with an HTTP client bounded by cfg.ReadyTimeout.
func NewBase(cfg Config) Base {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 2 * time.Second
	}
	return Base{Cfg: cfg, httpClient: &http.Client{Timeout: cfg.ReadyTimeout}}
}

// ServiceName returns the internal DNS / service name for group.
func (b Base) ServiceName(group string) string {
	return "stream-api-group-" + grouping.Sanitize(group)
}

const clusteredServicePort = 5555

// ServiceURL deterministically resolves group to its worker's base URL
// (spec §4.5): a hashed host port in local mode, or a fixed internal DNS
// name otherwise.
func (b Base) ServiceURL(group string) string {
	if b.Cfg.Environment == EnvironmentLocal {
		port := b.Cfg.GroupPortBase + hostPortOffset(group)
		return fmt.Sprintf("http://%s:%d", b.Cfg.SwarmNodeHost, port)
	}
	return fmt.Sprintf("http://%s:%d", b.ServiceName(group), clusteredServicePort)
}

// hostPortOffset hashes group into [0, 1000) deterministically, the same
// derivation _get_host_port used (md5 of the name, taken mod 1000).
func hostPortOffset(group string) int {
	sum := md5.Sum([]byte(group))
	n := binary.BigEndian.Uint32(sum[:4])
	return int(n % 1000)
}

// CheckServiceReady issues an HTTP GET to {ServiceURL(group)}/ready and
// interprets the readiness document (spec §4.5).
func (b Base) CheckServiceReady(ctx context.Context, group string) (bool, string) {
	url := b.ServiceURL(group) + "/ready"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, "failed to build readiness request: " + err.Error()
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return false, "worker unreachable: " + err.Error()
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, "worker exposes no readiness surface"
	}

	var doc ReadinessDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return false, "malformed readiness document: " + err.Error()
	}
	if doc.Status != "ready" {
		if len(doc.Issues) > 0 {
			for _, reason := range doc.Issues {
				return false, reason
			}
		}
		return false, "worker reports not ready"
	}
	return true, ""
}

// ServiceEnv builds the environment variables DeployService must inject
// into every worker (spec §4.5).
func (b Base) ServiceEnv(group string) map[string]string {
	return map[string]string{
		"KAFKA_BROKER":          b.Cfg.KafkaBroker,
		"KAFKA_TOPIC":           grouping.TopicName(group),
		"KAFKA_CONSUMER_GROUP_ID": grouping.ConsumerGroupID(group),
	}
}

// PreconditionFailed is a convenience wrapper so adapters report a
// consistent error kind for fatal-at-construction checks (spec §4.5
// invariant, §7 PreconditionFailed).
func PreconditionFailed(message string, err error) error {
	return errors.PreconditionFailed(message, err)
}
