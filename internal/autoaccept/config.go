package autoaccept

// Config controls how permissive the engine is.
type Config struct {
	Enabled            bool
	TrustedOperations  []OperationType
	MaxFileChanges     int
	RequireTestsPass   bool
	MaxExecutionTime   int // seconds
	RestrictedFiles    []string
	RequireCleanGit    bool
	EmergencyStopFlag  bool
}

// DefaultConfig mirrors the conservative defaults: disabled until an
// operator opts in, only read-only/idempotent operation types trusted.
func DefaultConfig() Config {
	return Config{
		Enabled:           false,
		TrustedOperations: []OperationType{ReadFile, FormatCode, RunTests, LintCode},
		MaxFileChanges:    5,
		RequireTestsPass:  true,
		MaxExecutionTime:  300,
		RestrictedFiles: []string{
			"Cargo.toml",
			"package.json",
			"*.sql",
			"*.env",
			"**/migrations/*",
		},
		RequireCleanGit:   true,
		EmergencyStopFlag: false,
	}
}

func (c Config) isTrusted(t OperationType) bool {
	for _, ot := range c.TrustedOperations {
		if ot == t {
			return true
		}
	}
	return false
}
