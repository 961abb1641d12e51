package autoaccept

import "testing"

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.Enabled {
		t.Error("expected disabled by default")
	}
	if !c.isTrusted(ReadFile) {
		t.Error("expected ReadFile to be trusted by default")
	}
	if c.MaxFileChanges != 5 {
		t.Errorf("expected max file changes 5, got %d", c.MaxFileChanges)
	}
}

func TestAnalyzeReadOperation(t *testing.T) {
	e := New(DefaultConfig())
	op := e.AnalyzeOperation([]string{"cat src/main.go"}, "")

	if op.Type != ReadFile {
		t.Errorf("expected ReadFile, got %s", op.Type)
	}
	if op.RiskLevel != 1 {
		t.Errorf("expected risk 1, got %d", op.RiskLevel)
	}
	if !op.Reversible {
		t.Error("expected reversible")
	}
}

func TestAnalyzeDangerousOperation(t *testing.T) {
	e := New(DefaultConfig())
	op := e.AnalyzeOperation([]string{"rm -rf /"}, "")

	if op.Type != DeleteFile {
		t.Errorf("expected DeleteFile, got %s", op.Type)
	}
	if op.RiskLevel < 8 {
		t.Errorf("expected risk >= 8, got %d", op.RiskLevel)
	}
}

func TestShouldAutoAcceptDisabled(t *testing.T) {
	e := New(DefaultConfig())
	op := Operation{Type: ReadFile, RiskLevel: 1, Reversible: true}

	d := e.ShouldAutoAccept(op)
	if d.Accepted {
		t.Error("expected rejection when disabled")
	}
}

func TestShouldAutoAcceptTrustedOperation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.TrustedOperations = []OperationType{ReadFile}
	e := New(cfg)
	op := Operation{Type: ReadFile, RiskLevel: 1, Reversible: true}

	d := e.ShouldAutoAccept(op)
	if !d.Accepted {
		t.Errorf("expected acceptance, got rejection: %s", d.Reason)
	}
}

func TestShouldAutoAcceptRiskTooHigh(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.TrustedOperations = []OperationType{DeleteFile}
	e := New(cfg)
	op := Operation{Type: DeleteFile, RiskLevel: 9}

	if d := e.ShouldAutoAccept(op); d.Accepted {
		t.Error("expected rejection for risk > 5")
	}
}

func TestShouldAutoAcceptRestrictedFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.TrustedOperations = []OperationType{EditFile}
	e := New(cfg)
	op := Operation{Type: EditFile, RiskLevel: 3, AffectedFiles: []string{"schema/migrations/001.sql"}}

	if d := e.ShouldAutoAccept(op); d.Accepted {
		t.Error("expected rejection for restricted file pattern")
	}
}

func TestPatternMatching(t *testing.T) {
	cases := []struct {
		file, pattern string
		want          bool
	}{
		{"test.sql", "*.sql", true},
		{"src/migrations/001.sql", "**/migrations/*", true},
		{"Cargo.toml", "Cargo.toml", true},
		{"test.rs", "*.sql", false},
	}
	for _, c := range cases {
		if got := matchesPattern(c.file, c.pattern); got != c.want {
			t.Errorf("matchesPattern(%q, %q) = %v, want %v", c.file, c.pattern, got, c.want)
		}
	}
}

func TestEmergencyStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	e := New(cfg)

	e.EmergencyStop()
	if !e.Config().EmergencyStopFlag {
		t.Error("expected emergency stop flag set")
	}
	if e.Config().Enabled {
		t.Error("expected auto-accept disabled after emergency stop")
	}

	op := Operation{Type: ReadFile, RiskLevel: 1}
	if d := e.ShouldAutoAccept(op); d.Accepted {
		t.Error("expected rejection during emergency stop")
	}

	e.ResetEmergencyStop()
	if e.Config().EmergencyStopFlag {
		t.Error("expected emergency stop flag cleared")
	}
	if e.Config().Enabled {
		t.Error("resetting emergency stop must not re-enable auto-accept")
	}
}

func TestOperationHistory(t *testing.T) {
	e := New(DefaultConfig())
	e.RecordOperation("session-1", Operation{Type: ReadFile})
	e.RecordOperation("session-1", Operation{Type: Build})

	hist := e.OperationHistory("session-1")
	if len(hist) != 2 {
		t.Fatalf("expected 2 recorded operations, got %d", len(hist))
	}

	e.ClearHistory("session-1")
	if len(e.OperationHistory("session-1")) != 0 {
		t.Error("expected history cleared")
	}
}
