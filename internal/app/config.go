package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Paths []string // build documents or directories holding one

	ShellOnFailure bool
	NonInteractive bool
	Vars           map[string]any
	// Environ overlays the process environment in the env variable layer.
	Environ   map[string]string
	EventsURL string

	LogFormat string
	LogLevel  string
}

func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.Paths) == 0 {
		return nil, errors.New("at least one build document path is required")
	}
	for _, p := range cfg.Paths {
		if p == "" {
			return nil, errors.New("build document path cannot be empty")
		}
	}
	return &cfg, nil
}
