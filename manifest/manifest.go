// Package manifest loads and validates the component startup manifest the
// registration helper reads before registering a component with the
// fabric (spec §6): a YAML file naming the component's identity, the
// capabilities/methods it exposes, and its own free-form config block.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/tekton-fabric/core/errs"
)

const component = "manifest"

var identPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

const (
	minPort = 1024
	maxPort = 65535
)

// Manifest is the decoded component.yaml: identity, capabilities, and a
// component-owned config block passed through verbatim.
type Manifest struct {
	Component    ComponentInfo          `yaml:"component"`
	Capabilities []Capability           `yaml:"capabilities,omitempty"`
	Config       map[string]interface{} `yaml:"config,omitempty"`
}

// ComponentInfo is the manifest's required identity block.
type ComponentInfo struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Port        int    `yaml:"port"`
	Description string `yaml:"description,omitempty"`
}

// Capability describes one capability a component advertises at
// registration time, grouping the methods that implement it.
type Capability struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Methods     []Method `yaml:"methods,omitempty"`
}

// Method is one RPC-like method a capability exposes.
type Method struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Parameters []string `yaml:"parameters,omitempty"`
	Returns    string   `yaml:"returns,omitempty"`
}

// Load reads and parses a manifest file from path, or, if path is a
// directory, from <path>/component.yaml (falling back to component.yml).
// The result is validated before being returned.
func Load(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errs.New(component, "load", errs.NotFound, "stat manifest path").WithCause(err)
	}

	configPath := path
	if info.IsDir() {
		yamlPath := filepath.Join(path, "component.yaml")
		if _, err := os.Stat(yamlPath); err == nil {
			configPath = yamlPath
		} else if ymlPath := filepath.Join(path, "component.yml"); fileExists(ymlPath) {
			configPath = ymlPath
		} else {
			return nil, errs.New(component, "load", errs.NotFound, "no component.yaml or component.yml found").
				WithDetails(map[string]any{"dir": path})
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errs.New(component, "load", errs.Internal, "read manifest file").WithCause(err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errs.New(component, "load", errs.InvalidArgument, "parse manifest yaml").WithCause(err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Validate checks required fields, id format, port range, and capability
// and method id uniqueness within their scope (spec §6).
func (m *Manifest) Validate() error {
	if m.Component.ID == "" {
		return fieldErr("id", "required")
	}
	if !identPattern.MatchString(m.Component.ID) {
		return fieldErr("id", "must be alphanumeric plus underscore")
	}
	if m.Component.Name == "" {
		return fieldErr("name", "required")
	}
	if m.Component.Version == "" {
		return fieldErr("version", "required")
	}
	if m.Component.Port < minPort || m.Component.Port > maxPort {
		return errs.New(component, "validate", errs.InvalidArgument,
			fmt.Sprintf("port must be between %d and %d", minPort, maxPort)).
			WithDetails(map[string]any{"port": m.Component.Port})
	}

	seenCaps := make(map[string]bool, len(m.Capabilities))
	for _, cap := range m.Capabilities {
		if cap.ID == "" {
			return fieldErr("capabilities[].id", "required")
		}
		if seenCaps[cap.ID] {
			return errs.New(component, "validate", errs.InvalidArgument, "duplicate capability id").
				WithDetails(map[string]any{"capability_id": cap.ID})
		}
		seenCaps[cap.ID] = true

		seenMethods := make(map[string]bool, len(cap.Methods))
		for _, meth := range cap.Methods {
			if meth.ID == "" {
				return fieldErr("capabilities[].methods[].id", "required")
			}
			if seenMethods[meth.ID] {
				return errs.New(component, "validate", errs.InvalidArgument, "duplicate method id within capability").
					WithDetails(map[string]any{"capability_id": cap.ID, "method_id": meth.ID})
			}
			seenMethods[meth.ID] = true
		}
	}

	return nil
}

func fieldErr(field, problem string) error {
	return errs.New(component, "validate", errs.InvalidArgument, fmt.Sprintf("%s: %s", field, problem)).
		WithDetails(map[string]any{"field": field})
}

// CapabilityIDs returns the flat list of capability ids the manifest
// declares, in manifest order — the shape the registration helper passes
// straight into ComponentDescriptor.Capabilities.
func (m *Manifest) CapabilityIDs() []string {
	ids := make([]string, len(m.Capabilities))
	for i, c := range m.Capabilities {
		ids[i] = c.ID
	}
	return ids
}
