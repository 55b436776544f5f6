package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is the YAML bot profile: the list-shaped configuration that is
// awkward to express in environment variables.
type Profile struct {
	Categories []string          `yaml:"categories"`
	Admins     []string          `yaml:"admins"`
	Snippets   map[string]string `yaml:"snippets"`
}

// applyProfile overlays the YAML profile at path onto the config.
// Environment values win where both are set.
func (c *Config) applyProfile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read bot profile %s: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to parse bot profile %s: %w", path, err)
	}

	if len(p.Categories) > 0 {
		c.Categories = p.Categories
	}
	if len(p.Admins) > 0 && c.AdminUsers == "" {
		c.AdminUsers = strings.Join(p.Admins, ",")
	}
	if len(p.Snippets) > 0 {
		c.SeedSnippets = make(map[string]string, len(p.Snippets))
		for name, content := range p.Snippets {
			c.SeedSnippets[strings.ToLower(name)] = content
		}
	}
	return nil
}
