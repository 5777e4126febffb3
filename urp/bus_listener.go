package urp

import (
	"context"
	"encoding/json"

	"github.com/tekton-fabric/core/bus"
	"github.com/tekton-fabric/core/registry"
)

// RequestAction identifies which Manager operation a bus-delivered
// registration request asks for (spec §6's
// tekton.registration.request/response.<id> contract — the wire protocol
// cmd/tektonctl speaks to a running fabric over HERMES_URL).
type RequestAction string

const (
	ActionRegister   RequestAction = "register"
	ActionUnregister RequestAction = "unregister"
	ActionStatus     RequestAction = "status"
	ActionList       RequestAction = "list"
)

// BusRequest is the decoded payload of a tekton.registration.request message.
type BusRequest struct {
	Action      RequestAction                `json:"action"`
	ComponentID string                       `json:"component_id"`
	Descriptor  registry.ComponentDescriptor `json:"descriptor,omitempty"`
	Token       *RegistrationToken           `json:"token,omitempty"`
}

// BusResponse is published to RegistrationResponseTopic(ComponentID) once a
// BusRequest has been handled.
type BusResponse struct {
	OK          bool                          `json:"ok"`
	Error       string                        `json:"error,omitempty"`
	Token       *RegistrationToken            `json:"token,omitempty"`
	Descriptor  *registry.ComponentDescriptor `json:"descriptor,omitempty"`
	Descriptors []*registry.ComponentDescriptor `json:"descriptors,omitempty"`
}

// ListenForRequests subscribes to tekton.registration.request and serves
// register/unregister/status/list actions over the bus, replying on each
// request's own RegistrationResponseTopic. Returns an unsubscribe function.
func (m *Manager) ListenForRequests(ctx context.Context) (func() error, error) {
	return m.bus.Subscribe(ctx, bus.TopicRegistrationRequest, m.handleBusRequest)
}

func (m *Manager) handleBusRequest(ctx context.Context, topic string, payload map[string]any) {
	req, err := decodeBusRequest(payload)
	if err != nil {
		return // malformed request; nothing we can address a response to
	}

	resp := m.dispatchBusRequest(ctx, req)
	m.publishBusResponse(ctx, req.ComponentID, resp)
}

func (m *Manager) dispatchBusRequest(ctx context.Context, req BusRequest) BusResponse {
	switch req.Action {
	case ActionRegister:
		token, err := m.Register(ctx, req.Descriptor, req.Token)
		if err != nil {
			return BusResponse{Error: err.Error()}
		}
		return BusResponse{OK: true, Token: token}

	case ActionUnregister:
		ok, err := m.Unregister(ctx, req.ComponentID, req.Token)
		if err != nil {
			return BusResponse{Error: err.Error()}
		}
		return BusResponse{OK: ok}

	case ActionStatus:
		descriptor, ok := m.registry.Get(req.ComponentID)
		if !ok {
			return BusResponse{Error: "component not registered"}
		}
		return BusResponse{OK: true, Descriptor: descriptor}

	case ActionList:
		all := m.registry.All()
		descriptors := make([]*registry.ComponentDescriptor, 0, len(all))
		for _, d := range all {
			descriptors = append(descriptors, d)
		}
		return BusResponse{OK: true, Descriptors: descriptors}

	default:
		return BusResponse{Error: "unknown action"}
	}
}

func (m *Manager) publishBusResponse(ctx context.Context, componentID string, resp BusResponse) {
	payload, err := encodeBusResponse(resp)
	if err != nil {
		m.onPublishError(err)
		return
	}
	if err := m.bus.Publish(ctx, bus.RegistrationResponseTopic(componentID), payload, nil); err != nil {
		m.onPublishError(err)
	}
}

func decodeBusRequest(payload map[string]any) (BusRequest, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return BusRequest{}, err
	}
	var req BusRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return BusRequest{}, err
	}
	return req, nil
}

func encodeBusResponse(resp BusResponse) (map[string]any, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
