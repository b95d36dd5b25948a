package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Seconds is a duration configured in seconds. It accepts a bare number
// ("30", 30, 1.5) meaning seconds, or a Go duration string ("30s", "2m")
// from environment variables, YAML and JSON alike.
type Seconds time.Duration

// Duration returns s as a [time.Duration].
func (s Seconds) Duration() time.Duration {
	return time.Duration(s)
}

// String renders s as a Go duration string.
func (s Seconds) String() string {
	return time.Duration(s).String()
}

// ParseSeconds parses a bare number of seconds or a Go duration string.
func ParseSeconds(value string) (Seconds, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("cannot parse empty duration")
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return Seconds(time.Duration(f * float64(time.Second))), nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("cannot parse %q as seconds or duration: %w", value, err)
	}
	return Seconds(d), nil
}

// UnmarshalText is used for environment variables and envDefault tags.
func (s *Seconds) UnmarshalText(text []byte) error {
	v, err := ParseSeconds(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MarshalText renders s as a Go duration string.
func (s Seconds) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalJSON accepts a JSON number of seconds or a string.
func (s *Seconds) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		return s.UnmarshalText([]byte(str))
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("seconds must be a number or duration string, got %s", data)
	}
	return s.UnmarshalText([]byte(n.String()))
}

// UnmarshalYAML accepts a scalar number of seconds or a duration string.
func (s *Seconds) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("seconds must be a scalar, got YAML kind %d at line %d", node.Kind, node.Line)
	}
	return s.UnmarshalText([]byte(node.Value))
}
