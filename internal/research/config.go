package research

import "time"

// Config bundles values a Research Loop closes over at construction time.
// No ambient globals: everything here is read once at startup and threaded
// through.
type Config struct {
	MaxDepth             int
	TimeLimit            time.Duration
	MaxFailedAttempts    int
	ReasoningModel       string
	BypassJSONValidation bool
	// DebugDir, when non-empty, makes the Loop write a JSON metrics file
	// per run.
	DebugDir string
}

func DefaultConfig() Config {
	return Config{
		MaxDepth:          7,
		TimeLimit:         4*time.Minute + 30*time.Second,
		MaxFailedAttempts: 3,
		ReasoningModel:    "o1-mini",
	}
}
