package core

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/promptrank/internal/backend/inflight"
	"github.com/jo-hoe/promptrank/internal/backend/renderer"
	"github.com/jo-hoe/promptrank/internal/rating"
	"github.com/jo-hoe/promptrank/internal/workflow"
)

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

// Images is where renders are served from. BaseURL, when set, prefixes the filepath
// of entries on the wire; otherwise the service's own /images route is used.
type Images struct {
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"baseURL"`
}

type Catalogue struct {
	Path string `yaml:"path"`
}

type ServiceConfig struct {
	Port        int                       `yaml:"port"`
	CORSOrigins []string                  `yaml:"corsOrigins"`
	Database    Database                  `yaml:"database"`
	InFlight    inflight.Config           `yaml:"inflight"`
	Rating      rating.Config             `yaml:"rating"`
	Renderer    renderer.Config           `yaml:"renderer"`
	Images      Images                    `yaml:"images"`
	Templates   []workflow.TemplateConfig `yaml:"templates"`
	Catalogue   Catalogue                 `yaml:"catalogue"`
}

// DefaultConfig runs everything in memory with rendering disabled.
func DefaultConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:     8080,
		Database: Database{Type: "memory"},
		InFlight: inflight.Config{Type: "memory", TTL: inflight.DefaultTTL},
		Rating:   rating.DefaultConfig(),
		Renderer: renderer.Config{Type: "none", JobTimeout: 10 * time.Minute},
		Images:   Images{Dir: "images"},
	}
}

// LoadConfig loads configuration from the specified YAML file. Keys missing from the
// file keep their DefaultConfig value.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	config := DefaultConfig()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
	}
	return config, nil
}

// Validate checks the sections that cannot be verified lazily.
func (c *ServiceConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.Database.Type {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unsupported database type: %q", c.Database.Type)
	}
	if c.Database.Type == "sqlite" && c.Database.ConnectionString == "" {
		return fmt.Errorf("sqlite database needs a connectionString")
	}
	switch c.InFlight.Type {
	case "memory", "":
	case "redis":
		if c.InFlight.Address == "" {
			return fmt.Errorf("redis inflight registry needs an address")
		}
	default:
		return fmt.Errorf("unsupported inflight type: %q", c.InFlight.Type)
	}
	if err := c.Rating.Validate(); err != nil {
		return fmt.Errorf("invalid rating configuration: %w", err)
	}
	switch c.Renderer.Type {
	case "none", "":
	case "comfyui":
		if c.Renderer.Address == "" {
			return fmt.Errorf("comfyui renderer needs an address")
		}
	default:
		return fmt.Errorf("unsupported renderer type: %q", c.Renderer.Type)
	}
	if c.Renderer.JobTimeout < 0 {
		return fmt.Errorf("renderer jobTimeout must not be negative")
	}
	if err := validateTemplates(c.Templates); err != nil {
		return fmt.Errorf("invalid template configuration: %w", err)
	}
	return nil
}

// validateTemplates ensures every configured template names a kind, once.
func validateTemplates(templates []workflow.TemplateConfig) error {
	seenKinds := make(map[string]bool)

	for i, t := range templates {
		kind := strings.ToLower(strings.TrimSpace(t.Kind))
		if kind == "" {
			return fmt.Errorf("template at index %d has empty kind", i)
		}
		if seenKinds[kind] {
			return fmt.Errorf("duplicate template kind: %s", kind)
		}
		seenKinds[kind] = true
	}

	return nil
}
