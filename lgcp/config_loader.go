package lgcp

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the pipeline configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks required fields and parameter relationships.
func (c *Config) Validate() error {
	if c.Frame == "" {
		return fmt.Errorf("frame is required")
	}
	if c.Mesh.InnerMaxEdge <= 0 || c.Mesh.OuterMaxEdge <= 0 || c.Mesh.Cutoff <= 0 {
		return fmt.Errorf("mesh.innerMaxEdge, mesh.outerMaxEdge and mesh.cutoff must be positive")
	}
	if c.Mesh.OuterMaxEdge <= c.Mesh.InnerMaxEdge {
		return fmt.Errorf("mesh.outerMaxEdge (%g) must exceed mesh.innerMaxEdge (%g)", c.Mesh.OuterMaxEdge, c.Mesh.InnerMaxEdge)
	}
	if c.Mesh.Cutoff >= c.Mesh.InnerMaxEdge {
		return fmt.Errorf("mesh.cutoff (%g) must be below mesh.innerMaxEdge (%g)", c.Mesh.Cutoff, c.Mesh.InnerMaxEdge)
	}
	if a := c.Field.Alpha; a != 0 && a != 1 && a != 2 {
		return fmt.Errorf("field.alpha must be 1 or 2")
	}
	if c.Field.RangePrior.Sigma < 0 || c.Field.SigmaPrior.Sigma < 0 {
		return fmt.Errorf("prior sigmas must be non-negative")
	}
	if c.MQTT != nil {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is configured")
		}
	}
	return nil
}
