package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ccswarm/ccswarm/internal/role"
)

func TestLoadTeamConfigParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "teams.yaml")
	contents := `
agents:
  - name: backend-1
    role: backend
    model: claude
    branch_prefix: agent
  - name: frontend-1
    role: frontend
    model: claude
    branch_prefix: agent
supervisor:
  name: master-1
  role: master
  model: claude
`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := LoadTeamConfig(path)
	if err != nil {
		t.Fatalf("LoadTeamConfig failed: %v", err)
	}
	if len(cfg.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(cfg.Agents))
	}
	if cfg.Supervisor.Role != role.Master {
		t.Errorf("expected supervisor role master, got %s", cfg.Supervisor.Role)
	}
}

func TestRolesToSpawnDedupesAndIncludesSupervisor(t *testing.T) {
	cfg := &TeamConfig{
		Agents: []AgentConfig{
			{Name: "b1", Role: role.Backend},
			{Name: "b2", Role: role.Backend},
			{Name: "f1", Role: role.Frontend},
		},
		Supervisor: AgentConfig{Name: "m1", Role: role.Master},
	}

	roles := cfg.RolesToSpawn()
	if len(roles) != 3 {
		t.Fatalf("expected 3 distinct roles, got %v", roles)
	}
}

func TestProjectConfigSaveAndLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ccswarm.json")

	cfg := DefaultProjectConfig("demo", dir)
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadProjectConfig(path)
	if err != nil {
		t.Fatalf("LoadProjectConfig failed: %v", err)
	}
	if loaded.ProjectName != "demo" || loaded.MaxConcurrent != 5 {
		t.Errorf("expected round-tripped config to match, got %+v", loaded)
	}
}
