// Package cli implements tektonctl, the registration helper CLI (spec §6):
// register/unregister/status/generate/list subcommands speaking the bus
// request/response protocol to a running fabric over HERMES_URL.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tekton-fabric/core/bus"
	"github.com/tekton-fabric/core/registry"
	"github.com/tekton-fabric/core/urp"
)

// defaultRequestTimeout bounds how long a one-shot request waits for its
// response on the bus before the CLI reports failure.
const defaultRequestTimeout = 10 * time.Second

// hermesClient sends tekton.registration.request messages over a bus.Bus
// dialed at HERMES_URL and correlates each with its response on
// bus.RegistrationResponseTopic.
type hermesClient struct {
	bus *bus.RedisBus
}

// dialHermes connects to the Redis-backed bus at url (defaulting to
// redis://localhost:6379, matching bus.NewRedisBus's own default).
func dialHermes(url string) (*hermesClient, error) {
	b, err := bus.NewRedisBus(bus.RedisBusOptions{URL: url})
	if err != nil {
		return nil, fmt.Errorf("connect to hermes at %q: %w", url, err)
	}
	return &hermesClient{bus: b}, nil
}

func (c *hermesClient) Close() error { return c.bus.Close() }

// request publishes req on tekton.registration.request, correlated by
// req.ComponentID, and blocks for the matching response or ctx/timeout.
func (c *hermesClient) request(ctx context.Context, req urp.BusRequest) (urp.BusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	responses := make(chan map[string]any, 1)
	unsubscribe, err := c.bus.Subscribe(ctx, bus.RegistrationResponseTopic(req.ComponentID),
		func(ctx context.Context, topic string, payload map[string]any) {
			select {
			case responses <- payload:
			default:
			}
		})
	if err != nil {
		return urp.BusResponse{}, fmt.Errorf("subscribe to response topic: %w", err)
	}
	defer unsubscribe()

	payload, err := requestToPayload(req)
	if err != nil {
		return urp.BusResponse{}, err
	}
	if err := c.bus.Publish(ctx, bus.TopicRegistrationRequest, payload, nil); err != nil {
		return urp.BusResponse{}, fmt.Errorf("publish registration request: %w", err)
	}

	select {
	case raw := <-responses:
		return payloadToResponse(raw)
	case <-ctx.Done():
		return urp.BusResponse{}, fmt.Errorf("timed out waiting for hermes response: %w", ctx.Err())
	}
}

// Register sends a register request for descriptor and returns the minted
// token.
func (c *hermesClient) Register(ctx context.Context, descriptor registry.ComponentDescriptor, presented *urp.RegistrationToken) (*urp.RegistrationToken, error) {
	resp, err := c.request(ctx, urp.BusRequest{
		Action:      urp.ActionRegister,
		ComponentID: descriptor.ID,
		Descriptor:  descriptor,
		Token:       presented,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("register %s: %s", descriptor.ID, resp.Error)
	}
	return resp.Token, nil
}

// Unregister sends an unregister request for componentID.
func (c *hermesClient) Unregister(ctx context.Context, componentID string, token *urp.RegistrationToken) error {
	resp, err := c.request(ctx, urp.BusRequest{
		Action:      urp.ActionUnregister,
		ComponentID: componentID,
		Token:       token,
	})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("unregister %s: %s", componentID, resp.Error)
	}
	return nil
}

// Status fetches the registry's current descriptor for componentID.
func (c *hermesClient) Status(ctx context.Context, componentID string) (*registry.ComponentDescriptor, error) {
	resp, err := c.request(ctx, urp.BusRequest{
		Action:      urp.ActionStatus,
		ComponentID: componentID,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("status %s: %s", componentID, resp.Error)
	}
	return resp.Descriptor, nil
}

// List fetches every component currently known to the registry. The
// correlation id is synthetic — list has no single subject component.
func (c *hermesClient) List(ctx context.Context) ([]*registry.ComponentDescriptor, error) {
	resp, err := c.request(ctx, urp.BusRequest{
		Action:      urp.ActionList,
		ComponentID: "tektonctl-list-" + uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("list: %s", resp.Error)
	}
	return resp.Descriptors, nil
}

func requestToPayload(req urp.BusRequest) (map[string]any, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode registration request: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("encode registration request: %w", err)
	}
	return out, nil
}

func payloadToResponse(payload map[string]any) (urp.BusResponse, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return urp.BusResponse{}, fmt.Errorf("decode registration response: %w", err)
	}
	var resp urp.BusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return urp.BusResponse{}, fmt.Errorf("decode registration response: %w", err)
	}
	return resp, nil
}
