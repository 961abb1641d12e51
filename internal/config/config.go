// Package config models the ccswarm.json project configuration and
// teams.yaml team roster, mirroring the teacher's internal/types
// configuration surface but adapted to ccswarm's role/session model.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ccswarm/ccswarm/internal/role"
)

// AgentConfig is one entry in teams.yaml: the static identity a role is
// spawned with.
type AgentConfig struct {
	Name         string    `yaml:"name" json:"name"`
	Role         role.Name `yaml:"role" json:"role"`
	Model        string    `yaml:"model" json:"model"`
	BranchPrefix string    `yaml:"branch_prefix" json:"branch_prefix"`
}

// TeamConfig is the whole teams.yaml document: one AgentConfig per role plus
// the master/supervisor entry.
type TeamConfig struct {
	Agents     []AgentConfig `yaml:"agents" json:"agents"`
	Supervisor AgentConfig   `yaml:"supervisor" json:"supervisor"`
}

// LoadTeamConfig reads and parses a teams.yaml file at path.
func LoadTeamConfig(path string) (*TeamConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading team config: %w", err)
	}
	var cfg TeamConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing team config: %w", err)
	}
	return &cfg, nil
}

// RolesToSpawn returns the distinct roles named by the team config, always
// including the supervisor's role, in teams.yaml order.
func (c *TeamConfig) RolesToSpawn() []role.Name {
	seen := make(map[role.Name]bool)
	var out []role.Name
	add := func(r role.Name) {
		if r == "" || seen[r] {
			return
		}
		seen[r] = true
		out = append(out, r)
	}
	for _, a := range c.Agents {
		add(a.Role)
	}
	add(c.Supervisor.Role)
	return out
}

// ProjectConfig is the ccswarm.json-equivalent top-level project
// configuration: root directory, branch naming, and concurrency limits.
type ProjectConfig struct {
	ProjectName      string `json:"project_name"`
	Root             string `json:"root"`
	BranchPrefix     string `json:"branch_prefix"`
	MaxConcurrent    int    `json:"max_concurrent"`
	ProactiveEnabled bool   `json:"proactive_enabled"`
	AutoAcceptRisk   int    `json:"auto_accept_risk"`
}

// DefaultProjectConfig mirrors the teacher's zero-config defaults:
// concurrency 5 (matching internal/executor's defaultMaxConcurrent),
// proactive monitoring on, auto-accept risk at 3. cmd/ccswarmd only checks
// AutoAcceptRisk for being above zero to enable the safety engine; the
// engine's own risk ceiling is a fixed 5.
func DefaultProjectConfig(projectName, root string) ProjectConfig {
	return ProjectConfig{
		ProjectName:      projectName,
		Root:             root,
		BranchPrefix:     "agent",
		MaxConcurrent:    5,
		ProactiveEnabled: true,
		AutoAcceptRisk:   3,
	}
}

// LoadProjectConfig reads and parses a ccswarm.json file at path.
func LoadProjectConfig(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading project config: %w", err)
	}
	var cfg ProjectConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing project config: %w", err)
	}
	return &cfg, nil
}

// Save writes the project config to path as indented JSON.
func (c ProjectConfig) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding project config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing project config: %w", err)
	}
	return nil
}
