package playbook

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk playbook configuration.
//
//	default:            # optional, replaces the built-in table
//	  - reason: too-expensive
//	    offer_type: discount
//	    value: "25"
//	    duration_months: 3
//	    message: ...
//	    priority: 1
//	tenants:
//	  acme:
//	    - reason: ...
type Config struct {
	Default []Rule            `yaml:"default"`
	Tenants map[string][]Rule `yaml:"tenants"`
}

// LoadConfig loads playbook configuration from a YAML file.
// Supports environment variable expansion in the form ${VAR_NAME} or ${VAR_NAME:default}.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playbook file %s: %w", path, err)
	}

	return ParseConfig(data)
}

// ParseConfig parses and validates YAML playbook configuration.
func ParseConfig(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML playbook: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid playbook: %w", err)
	}

	return &cfg, nil
}

// Validate checks every table in the configuration.
func (c *Config) Validate() error {
	if len(c.Default) > 0 {
		if _, err := NewTable("", c.Default); err != nil {
			return fmt.Errorf("default table: %w", err)
		}
	}

	for tenantID, rules := range c.Tenants {
		if tenantID == "" {
			return fmt.Errorf("tenant table with empty tenant ID found")
		}
		if len(rules) == 0 {
			return fmt.Errorf("tenant %s has an empty table", tenantID)
		}
		if _, err := NewTable(tenantID, rules); err != nil {
			return fmt.Errorf("tenant %s: %w", tenantID, err)
		}
	}

	return nil
}

// envRef matches ${VAR} and ${VAR:default}. Any other $ is literal text.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if value := os.Getenv(m[1]); value != "" {
			return value
		}
		return m[2]
	})
}
