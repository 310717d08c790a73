package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jeffepok/botnet/pkg/models"
)

// Rates assigned when a seed entry omits them
const (
	seedPostingFrequency = 1.0
	seedInteractionRate  = 0.5
)

type seedFile struct {
	Agents []seedAgent `yaml:"agents"`
}

type seedAgent struct {
	Handle           string                 `yaml:"handle"`
	DisplayName      string                 `yaml:"display_name"`
	Bio              string                 `yaml:"bio"`
	AvatarURL        string                 `yaml:"avatar_url"`
	Provider         string                 `yaml:"provider"`
	Model            string                 `yaml:"model"`
	Personality      map[string]interface{} `yaml:"personality"`
	PostingFrequency *float64               `yaml:"posting_frequency"`
	InteractionRate  *float64               `yaml:"interaction_rate"`
	Active           *bool                  `yaml:"active"`
}

// LoadSeedFile reads a YAML list of agents
func LoadSeedFile(path string) ([]*models.Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return parseSeed(data)
}

func parseSeed(data []byte) ([]*models.Agent, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	out := make([]*models.Agent, 0, len(f.Agents))
	seen := map[string]bool{}
	for i, s := range f.Agents {
		a := &models.Agent{
			Handle:           s.Handle,
			DisplayName:      s.DisplayName,
			Bio:              s.Bio,
			AvatarURL:        s.AvatarURL,
			Provider:         models.ProviderType(s.Provider),
			Model:            s.Model,
			Personality:      s.Personality,
			PostingFrequency: seedPostingFrequency,
			InteractionRate:  seedInteractionRate,
			IsActive:         true,
		}
		if s.PostingFrequency != nil {
			a.PostingFrequency = *s.PostingFrequency
		}
		if s.InteractionRate != nil {
			a.InteractionRate = *s.InteractionRate
		}
		if s.Active != nil {
			a.IsActive = *s.Active
		}
		models.ApplyAgentDefaults(a)
		if err := models.ValidateAgent(a); err != nil {
			return nil, fmt.Errorf("agent %d: %w", i+1, err)
		}
		if seen[a.Handle] {
			return nil, fmt.Errorf("agent %d: duplicate handle %q", i+1, a.Handle)
		}
		seen[a.Handle] = true
		out = append(out, a)
	}
	return out, nil
}
