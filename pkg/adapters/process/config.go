package process

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/turnstile/pkg/domain"
	"gopkg.in/yaml.v3"
)

// CommandConfig declares the command that delivers one channel.
type CommandConfig struct {
	Channel     domain.Channel    `yaml:"channel" json:"channel"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of senders.yaml
type ConfigFile struct {
	Senders []CommandConfig `yaml:"senders" json:"senders"`
}

// LoadSenders reads a configuration file (YAML or JSON) and returns the
// commands keyed by channel. A missing file yields no commands.
func LoadSenders(path string) (map[domain.Channel]CommandConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[domain.Channel]CommandConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read senders config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	out := make(map[domain.Channel]CommandConfig, len(cfg.Senders))
	for _, s := range cfg.Senders {
		if s.Channel == "" || s.Command == "" {
			return nil, fmt.Errorf("%s: sender entries need channel and command", path)
		}
		if _, dup := out[s.Channel]; dup {
			return nil, fmt.Errorf("%s: channel %q declared twice", path, s.Channel)
		}
		out[s.Channel] = s
	}
	return out, nil
}
