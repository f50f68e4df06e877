package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/mosaicnetworks/dsm/src/common"
	"github.com/mosaicnetworks/dsm/src/proxy"
)

// Default filenames.
const (
	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultInfoLogFile and DefaultDebugLogFile are the names of the log
	// files written in LogDir.
	DefaultInfoLogFile  = "dsm_info.log"
	DefaultDebugLogFile = "dsm_debug.log"
)

// Default configuration values.
const (
	DefaultLogLevel     = "debug"
	DefaultBindAddr     = "127.0.0.1:1337"
	DefaultServiceAddr  = "127.0.0.1:8000"
	DefaultTCPTimeout   = 1000 * time.Millisecond
	DefaultMaxPool      = 2
	DefaultSendAttempts   = 0
	DefaultSendBackoff    = 100 * time.Millisecond
	DefaultMaxSendBackoff = 2 * time.Second
	DefaultTieBreak       = "lowest-id"
	DefaultStore          = false
)

// Config contains all the configuration properties of a dsm node.
type Config struct {
	// DataDir is the top-level directory containing dsm configuration and
	// data. It holds the topology file.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogDir, when set, is a directory where info and debug level logs are
	// also written to files.
	LogDir string `mapstructure:"log-dir"`

	// ID is the ID of this node in the topology.
	ID uint32 `mapstructure:"id"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// BindAddr is the local address:port where this node receives protocol
	// messages from other nodes. It defaults to the address of this node in
	// the topology.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service. If not
	// specified, and "no-service" is not set, the API handlers are registered
	// with the DefaultServerMux of the http package.
	ServiceAddr string `mapstructure:"service-listen"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout is the I/O timeout of protocol connections.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// SendAttempts is the number of times a message is sent before the
	// destination is considered unreachable, which stops the node. Zero
	// retries until the node shuts down.
	SendAttempts int `mapstructure:"send-attempts"`

	// SendBackoff is the pause after the first failed attempt to send a
	// message. It doubles after each further failure, up to MaxSendBackoff.
	SendBackoff time.Duration `mapstructure:"send-backoff"`

	// MaxSendBackoff caps the pause between two attempts.
	MaxSendBackoff time.Duration `mapstructure:"max-send-backoff"`

	// TieBreak selects the policy that resolves circular waits between
	// deferred operations: "lowest-id" or "strict".
	TieBreak string `mapstructure:"tie-break"`

	// Store activates the badger archive of the operation log.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// Proxy is the application proxy that enables dsm to communicate with
	// the application.
	Proxy proxy.AppProxy

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:      DefaultDataDir(),
		LogLevel:     DefaultLogLevel,
		ServiceAddr:  DefaultServiceAddr,
		TCPTimeout:   DefaultTCPTimeout,
		MaxPool:      DefaultMaxPool,
		SendAttempts:   DefaultSendAttempts,
		SendBackoff:    DefaultSendBackoff,
		MaxSendBackoff: DefaultMaxSendBackoff,
		TieBreak:       DefaultTieBreak,
		Store:          DefaultStore,
		DatabaseDir:    DefaultDatabaseDir(),
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.NoService = true
	config.SendBackoff = 10 * time.Millisecond
	config.MaxSendBackoff = 100 * time.Millisecond
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level dsm directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// SetLogger replaces the logger used by all the components of the node.
func (c *Config) SetLogger(logger *logrus.Logger) {
	c.logger = logger
}

// Logger returns a formatted logrus Entry, with prefix set to "dsm".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
		if c.LogDir != "" {
			c.logger.Hooks.Add(newFileHook(c.LogDir))
		}
	}
	return c.logger.WithField("prefix", "dsm")
}

// newFileHook returns a hook writing info and debug level entries to files in
// dir.
func newFileHook(dir string) logrus.Hook {
	pathMap := lfshook.PathMap{}

	if err := os.MkdirAll(dir, 0755); err == nil {
		pathMap[logrus.InfoLevel] = filepath.Join(dir, DefaultInfoLogFile)
		pathMap[logrus.DebugLevel] = filepath.Join(dir, DefaultDebugLogFile)
	}

	return lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	)
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level dsm config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".DSM")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "DSM")
		} else {
			return filepath.Join(home, ".dsm")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
