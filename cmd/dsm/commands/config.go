package commands

import (
	"time"

	"github.com/mosaicnetworks/dsm/src/config"
)

// DefaultSimulationTimeout bounds the duration of `dsm simulate`.
const DefaultSimulationTimeout = 30 * time.Second

//CLIConfig contains configuration for the Run and Simulate commands
type CLIConfig struct {
	DSM          config.Config `mapstructure:",squash"`
	TopologyFile string        `mapstructure:"topology"`
	Example      int           `mapstructure:"example"`
	Timeout      time.Duration `mapstructure:"sim-timeout"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		DSM:     *config.NewDefaultConfig(),
		Timeout: DefaultSimulationTimeout,
	}
}
