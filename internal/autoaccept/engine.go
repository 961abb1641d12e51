package autoaccept

import (
	"fmt"
	"strings"
	"sync"
)

// Decision is the outcome of Engine.ShouldAutoAccept.
type Decision struct {
	Accepted   bool
	Conditions []string // set when Accepted
	Reason     string   // set when !Accepted
}

// ValidationResult is the outcome of Engine.ValidateChanges.
type ValidationResult struct {
	Valid  bool
	Issues []string
}

// Engine evaluates operations against a Config and keeps a per-session
// history of what it has seen.
type Engine struct {
	mu      sync.RWMutex
	config  Config
	history map[string][]Operation
}

// New builds an Engine with the given config.
func New(config Config) *Engine {
	return &Engine{config: config, history: make(map[string][]Operation)}
}

// Config returns a copy of the current configuration.
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config
}

// UpdateConfig replaces the engine's configuration.
func (e *Engine) UpdateConfig(c Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config = c
}

// EmergencyStop immediately disables auto-accept and sets the emergency
// flag; only ResetEmergencyStop clears it.
func (e *Engine) EmergencyStop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config.EmergencyStopFlag = true
	e.config.Enabled = false
}

// ResetEmergencyStop clears the emergency flag. It does not re-enable
// auto-accept; that requires a separate, deliberate config change.
func (e *Engine) ResetEmergencyStop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config.EmergencyStopFlag = false
}

// AnalyzeOperation classifies a set of commands into an Operation, deriving
// its type, risk level and reversibility from command-substring matching.
func (e *Engine) AnalyzeOperation(commands []string, taskID string) Operation {
	op := Operation{
		Type:        Other,
		Description: "Commands: " + strings.Join(commands, "; "),
		Commands:    append([]string(nil), commands...),
		RiskLevel:   5,
		Reversible:  false,
		TaskID:      taskID,
	}

	for _, command := range commands {
		lower := strings.ToLower(command)

		switch {
		case strings.Contains(lower, "cat ") || strings.Contains(lower, "ls ") || strings.Contains(lower, "find "):
			op.Type = ReadFile
			op.RiskLevel = min(op.RiskLevel, 1)
			op.Reversible = true
		case strings.Contains(lower, "echo ") && strings.Contains(lower, " > "):
			op.Type = WriteFile
			op.RiskLevel = max(op.RiskLevel, 4)
		case strings.Contains(lower, "sed ") || strings.Contains(lower, "awk ") || strings.Contains(lower, " edit "):
			op.Type = EditFile
			op.RiskLevel = max(op.RiskLevel, 3)
		case strings.Contains(lower, "rm ") || strings.Contains(lower, "delete "):
			op.Type = DeleteFile
			op.RiskLevel = max(op.RiskLevel, 8)
		case strings.Contains(lower, "test") || strings.Contains(lower, "cargo test") || strings.Contains(lower, "npm test"):
			op.Type = RunTests
			op.RiskLevel = min(op.RiskLevel, 2)
			op.Reversible = true
		case strings.Contains(lower, "fmt") || strings.Contains(lower, "format") || strings.Contains(lower, "prettier"):
			op.Type = FormatCode
			op.RiskLevel = min(op.RiskLevel, 1)
			op.Reversible = true
		case strings.Contains(lower, "lint") || strings.Contains(lower, "clippy") || strings.Contains(lower, "eslint"):
			op.Type = LintCode
			op.RiskLevel = min(op.RiskLevel, 1)
			op.Reversible = true
		case strings.Contains(lower, "git "):
			op.Type = GitOperation
			if strings.Contains(lower, "git push") || strings.Contains(lower, "git reset --hard") {
				op.RiskLevel = max(op.RiskLevel, 7)
			} else {
				op.RiskLevel = max(op.RiskLevel, 3)
			}
		case strings.Contains(lower, "cargo install") || strings.Contains(lower, "npm install") || strings.Contains(lower, "pip install"):
			op.Type = InstallDependencies
			op.RiskLevel = max(op.RiskLevel, 5)
		case strings.Contains(lower, "build") || strings.Contains(lower, "cargo build") || strings.Contains(lower, "npm run build"):
			op.Type = Build
			op.RiskLevel = max(op.RiskLevel, 2)
			op.Reversible = true
		case strings.Contains(lower, "psql") || strings.Contains(lower, "mysql") || strings.Contains(lower, "sqlite"):
			op.Type = DatabaseOperation
			op.RiskLevel = max(op.RiskLevel, 9)
		case strings.Contains(lower, "curl") || strings.Contains(lower, "wget") || strings.Contains(lower, "http"):
			op.Type = NetworkRequest
			op.RiskLevel = max(op.RiskLevel, 4)
		case strings.Contains(lower, "mkdir"):
			op.Type = CreateDirectory
			op.RiskLevel = min(op.RiskLevel, 2)
			op.Reversible = true
		default:
			op.Type = SystemCommand
			op.RiskLevel = max(op.RiskLevel, 6)
		}

		op.AffectedFiles = appendUnique(op.AffectedFiles, extractFilePaths(command)...)
	}

	return op
}

// ShouldAutoAccept applies the rejection chain in order: emergency stop,
// disabled, untrusted operation type, risk too high, too many files
// touched, restricted file pattern match. Anything surviving is accepted
// with the configured conditions (tests-must-pass, git-must-be-clean).
func (e *Engine) ShouldAutoAccept(op Operation) Decision {
	e.mu.RLock()
	c := e.config
	e.mu.RUnlock()

	if c.EmergencyStopFlag {
		return Decision{Reason: "emergency stop is active"}
	}
	if !c.Enabled {
		return Decision{Reason: "auto-accept is disabled"}
	}
	if !c.isTrusted(op.Type) {
		return Decision{Reason: fmt.Sprintf("operation type %s is not in trusted operations list", op.Type)}
	}
	if op.RiskLevel > 5 {
		return Decision{Reason: fmt.Sprintf("risk level too high: %d > 5", op.RiskLevel)}
	}
	if len(op.AffectedFiles) > c.MaxFileChanges {
		return Decision{Reason: fmt.Sprintf("too many file changes: %d > %d", len(op.AffectedFiles), c.MaxFileChanges)}
	}
	for _, f := range op.AffectedFiles {
		for _, pattern := range c.RestrictedFiles {
			if matchesPattern(f, pattern) {
				return Decision{Reason: fmt.Sprintf("file %s matches restricted pattern %s", f, pattern)}
			}
		}
	}

	var conditions []string
	if c.RequireTestsPass {
		conditions = append(conditions, "Tests must pass")
	}
	if c.RequireCleanGit {
		conditions = append(conditions, "Git working directory must be clean")
	}
	return Decision{Accepted: true, Conditions: conditions}
}

// ValidateChanges checks post-execution constraints; currently only
// execution time against MaxExecutionTime.
func (e *Engine) ValidateChanges(executionTimeSeconds int) ValidationResult {
	e.mu.RLock()
	limit := e.config.MaxExecutionTime
	e.mu.RUnlock()

	var issues []string
	if executionTimeSeconds > limit {
		issues = append(issues, fmt.Sprintf("execution time exceeded limit: %ds > %ds", executionTimeSeconds, limit))
	}
	if len(issues) == 0 {
		return ValidationResult{Valid: true}
	}
	return ValidationResult{Valid: false, Issues: issues}
}

// RecordOperation appends op to the session's operation history.
func (e *Engine) RecordOperation(sessionID string, op Operation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history[sessionID] = append(e.history[sessionID], op)
}

// OperationHistory returns the recorded operations for a session.
func (e *Engine) OperationHistory(sessionID string) []Operation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Operation(nil), e.history[sessionID]...)
}

// ClearHistory drops a session's recorded operations.
func (e *Engine) ClearHistory(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.history, sessionID)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func appendUnique(dst []string, items ...string) []string {
	for _, item := range items {
		found := false
		for _, existing := range dst {
			if existing == item {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, item)
		}
	}
	return dst
}
