package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/insight-auth/pkg/errors"
)

// PermissionConfig holds per-resource permissions and the default decision
// for resources it does not list. It is immutable once built and safe for
// concurrent use.
type PermissionConfig struct {
	resources         map[string]ResourcePermission
	allowUnrecognized bool
}

// permissionDocument is the on-disk shape of a permission file.
type permissionDocument struct {
	Mapping           map[string]any `json:"redisToPermissionMapping" yaml:"redisToPermissionMapping"`
	AllowUnrecognized bool           `json:"allowAccessToUnrecognizedRedises" yaml:"allowAccessToUnrecognizedRedises"`
}

// NewPermissionConfig copies resources into a new configuration.
func NewPermissionConfig(resources map[string]ResourcePermission, allowUnrecognized bool) *PermissionConfig {
	cp := make(map[string]ResourcePermission, len(resources))
	for name, perm := range resources {
		cp[name] = perm.clone()
	}
	return &PermissionConfig{resources: cp, allowUnrecognized: allowUnrecognized}
}

// LoadPermissionConfig reads a permission file. The format follows the
// extension: ".json", ".yaml" or ".yml".
func LoadPermissionConfig(path string) (*PermissionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"auth: failed to read permissions file %q", path)
	}

	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		format = "json"
	case ".yaml", ".yml":
		format = "yaml"
	default:
		return nil, sserr.Validationf("auth: unsupported permissions file extension %q", filepath.Ext(path))
	}

	cfg, err := ParsePermissionConfig(data, format)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParsePermissionConfig decodes a permission document in the given format
// ("json" or "yaml") and validates its shape.
func ParsePermissionConfig(data []byte, format string) (*PermissionConfig, error) {
	var doc permissionDocument
	switch format {
	case "json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, sserr.Wrap(err, sserr.CodeValidation, "auth: failed to parse JSON permissions")
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, sserr.Wrap(err, sserr.CodeValidation, "auth: failed to parse YAML permissions")
		}
	default:
		return nil, sserr.Validationf("auth: unsupported permissions format %q", format)
	}

	resources := make(map[string]ResourcePermission, len(doc.Mapping))
	for name, raw := range doc.Mapping {
		if raw == nil {
			continue
		}
		perm, err := decodeResourcePermission(name, raw)
		if err != nil {
			return nil, err
		}
		resources[name] = perm
	}

	return &PermissionConfig{resources: resources, allowUnrecognized: doc.AllowUnrecognized}, nil
}

func decodeResourcePermission(resource string, raw any) (ResourcePermission, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, sserr.Validationf("auth: permission for %q must be an array of rules", resource).
			WithDetail("resource", resource)
	}

	perm := make(ResourcePermission, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, sserr.Validationf("auth: rule %d for %q must be an object", i, resource).
				WithDetail("resource", resource)
		}
		rule := make(PermissionRule, len(obj))
		for claim, value := range obj {
			if err := validateRequirement(value); err != nil {
				return nil, sserr.Validationf("auth: rule %d for %q, claim %q: %v", i, resource, claim, err).
					WithDetail("resource", resource)
			}
			rule[claim] = value
		}
		perm = append(perm, rule)
	}
	return perm, nil
}

// validateRequirement accepts a scalar or a flat sequence of scalars.
func validateRequirement(value any) error {
	if seq, ok := value.([]any); ok {
		for _, e := range seq {
			if _, ok := normalizeScalar(e); !ok {
				return fmt.Errorf("sequence elements must be scalars, got %T", e)
			}
		}
		return nil
	}
	if _, ok := normalizeScalar(value); !ok {
		return fmt.Errorf("required value must be a scalar or an array of scalars, got %T", value)
	}
	return nil
}

// Permission returns a copy of the permission configured for resource.
func (c *PermissionConfig) Permission(resource string) (ResourcePermission, bool) {
	perm, ok := c.resources[resource]
	if !ok {
		return nil, false
	}
	return perm.clone(), true
}

// AllowUnrecognized is the decision for resources without a permission.
func (c *PermissionConfig) AllowUnrecognized() bool {
	return c.allowUnrecognized
}

// Resources returns the configured resource names in sorted order.
func (c *PermissionConfig) Resources() []string {
	names := make([]string, 0, len(c.resources))
	for name := range c.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p ResourcePermission) clone() ResourcePermission {
	if p == nil {
		return nil
	}
	out := make(ResourcePermission, len(p))
	for i, rule := range p {
		r := make(PermissionRule, len(rule))
		for k, v := range rule {
			if seq, ok := v.([]any); ok {
				v = append([]any(nil), seq...)
			}
			r[k] = v
		}
		out[i] = r
	}
	return out
}
