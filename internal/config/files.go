package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/janhq/usage-sync/internal/infrastructure/logger"
)

// repositoryEntry accepts either "owner/name[@branch]" or a mapping with
// owner, name and branch keys.
type repositoryEntry struct {
	spec string
}

func (e *repositoryEntry) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		e.spec = strings.TrimSpace(node.Value)
		return nil
	case yaml.MappingNode:
		var m struct {
			Owner  string `yaml:"owner"`
			Name   string `yaml:"name"`
			Branch string `yaml:"branch"`
		}
		if err := node.Decode(&m); err != nil {
			return err
		}
		if m.Owner == "" || m.Name == "" {
			return fmt.Errorf("line %d: repository needs owner and name", node.Line)
		}
		e.spec = m.Owner + "/" + m.Name
		if m.Branch != "" {
			e.spec += "@" + m.Branch
		}
		return nil
	default:
		return fmt.Errorf("line %d: unsupported repository entry", node.Line)
	}
}

type repositoryDocument struct {
	Repositories []repositoryEntry `yaml:"repositories"`
}

// LoadRepositoryFile reads the tracked repository list.
func LoadRepositoryFile(path string) ([]string, error) {
	data, cleanPath, err := readConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("read repository file: %w", err)
	}
	var doc repositoryDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse repository file %q: %w", cleanPath, err)
	}
	specs := make([]string, 0, len(doc.Repositories))
	for _, r := range doc.Repositories {
		if r.spec != "" {
			specs = append(specs, r.spec)
		}
	}
	log := logger.GetLogger()
	log.Info().Str("path", cleanPath).Int("repositories", len(specs)).Msg("loaded repository file")
	return specs, nil
}

type identityDocument struct {
	Mappings []struct {
		Provider   string `yaml:"provider"`
		ExternalID string `yaml:"external_id"`
		Email      string `yaml:"email"`
	} `yaml:"mappings"`
}

// LoadIdentityMappings reads provider -> external id -> email mappings.
func LoadIdentityMappings(path string) (map[string]map[string]string, error) {
	data, cleanPath, err := readConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity mappings: %w", err)
	}
	var doc identityDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse identity mappings %q: %w", cleanPath, err)
	}
	out := make(map[string]map[string]string)
	for i, m := range doc.Mappings {
		provider := strings.ToLower(strings.TrimSpace(m.Provider))
		if provider == "" || strings.TrimSpace(m.ExternalID) == "" || strings.TrimSpace(m.Email) == "" {
			return nil, fmt.Errorf("identity mapping %d in %q is incomplete", i, cleanPath)
		}
		if out[provider] == nil {
			out[provider] = make(map[string]string)
		}
		out[provider][m.ExternalID] = strings.ToLower(strings.TrimSpace(m.Email))
	}
	return out, nil
}

func readConfigFile(path string) ([]byte, string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, "", errors.New("path is empty")
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, cleanPath, fmt.Errorf("%q: %w", cleanPath, err)
	}
	return data, cleanPath, nil
}
