package adapt

import (
	"github.com/caarlos0/env/v11"
)

// RunGate decides once per process whether migrations are performed at all.
type RunGate interface {
	// ShouldRun reports whether to run and a human readable description of
	// where the decision came from.
	ShouldRun() (run bool, description string, err error)
}

type envGateConfig struct {
	ShouldRun bool `env:"ADAPT_SHOULD_RUN" envDefault:"true"`
}

type envGate struct{}

// NewEnvGate provides the default RunGate. It reads the boolean environment
// variable ADAPT_SHOULD_RUN and runs when it is unset.
func NewEnvGate() RunGate {
	return &envGate{}
}

func (g *envGate) ShouldRun() (bool, string, error) {
	var cfg envGateConfig
	if err := env.Parse(&cfg); err != nil {
		return false, "", err
	}
	return cfg.ShouldRun, "environment variable ADAPT_SHOULD_RUN", nil
}

type staticGate bool

// StaticGate provides a RunGate that always reports run
func StaticGate(run bool) RunGate {
	return staticGate(run)
}

func (g staticGate) ShouldRun() (bool, string, error) {
	return bool(g), "static configuration", nil
}
