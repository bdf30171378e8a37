package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts "10s"/"1m" strings or bare numbers of seconds in YAML and JSON.
type Duration struct {
	time.Duration
}

func parseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

func secondsToDuration(raw string) (time.Duration, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration seconds %q: %w", raw, err)
	}
	return time.Duration(f * float64(time.Second)), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}
	var err error
	switch value.Tag {
	case "!!str":
		d.Duration, err = parseDurationString(value.Value)
	case "!!int", "!!float":
		d.Duration, err = secondsToDuration(value.Value)
	case "!!null":
		d.Duration = 0
	default:
		err = fmt.Errorf("unsupported duration value %q (tag %s)", value.Value, value.Tag)
	}
	return err
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "" || raw == "null" {
		d.Duration = 0
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return err
		}
		var err error
		d.Duration, err = parseDurationString(s)
		return err
	}
	var err error
	d.Duration, err = secondsToDuration(raw)
	return err
}
