package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// TimeDuration is a time.Duration that decodes from the human-readable
// form used in configuration files ("250ms", "15s").
type TimeDuration time.Duration

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("transport.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d *TimeDuration) UnmarshalJSON(bytes []byte) error {
	var v string
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	duration, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("transport.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) String() string {
	return time.Duration(d).String()
}
