package commands

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mosaicnetworks/dsm/src/dsm"
)

//NewRunCmd returns the command that starts a dsm node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runDSM,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runDSM(cmd *cobra.Command, args []string) error {
	engine := dsm.NewDSM(&_config.DSM)

	if err := engine.Init(); err != nil {
		_config.DSM.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	if err := engine.Run(); err != nil {
		_config.DSM.Logger().Error("Node stopped:", err)
		return err
	}

	dsm.WriteMemory(cmd.OutOrStdout(), engine.Node.ID(), engine.Node.Snapshot())
	dsm.WriteLog(cmd.OutOrStdout(), engine.Node.ID(), engine.Node.Log())

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	addCommonFlags(cmd)

	cmd.Flags().Uint32("id", _config.DSM.ID, "ID of this node in the topology")
	cmd.Flags().String("moniker", _config.DSM.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.DSM.BindAddr, "Listen IP:Port for dsm node (default: address in the topology)")
	cmd.Flags().StringP("advertise", "a", _config.DSM.AdvertiseAddr, "Advertise IP:Port for dsm node")
	cmd.Flags().DurationP("timeout", "t", _config.DSM.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.DSM.MaxPool, "Connection pool size max")

	// Service
	cmd.Flags().Bool("no-service", _config.DSM.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.DSM.ServiceAddr, "Listen IP:Port for HTTP service")
}

// addCommonFlags adds the flags shared by the Run and Simulate commands
func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.DSM.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.DSM.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-dir", _config.DSM.LogDir, "Also write info and debug logs to files in this directory")

	// Protocol
	cmd.Flags().Int("send-attempts", _config.DSM.SendAttempts, "Number of attempts to send a message (0 = until shutdown)")
	cmd.Flags().Duration("send-backoff", _config.DSM.SendBackoff, "Pause after the first failed attempt to send a message")
	cmd.Flags().Duration("max-send-backoff", _config.DSM.MaxSendBackoff, "Maximum pause between two attempts to send a message")
	cmd.Flags().String("tie-break", _config.DSM.TieBreak, "Tie-break policy: lowest-id, strict")

	// Store
	cmd.Flags().Bool("store", _config.DSM.Store, "Archive the log in badgerDB")
	cmd.Flags().String("db", _config.DSM.DatabaseDir, "Database directory")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.DSM.SetDataDir(_config.DSM.DataDir)

	logFields := logrus.Fields{
		"dsm.DataDir":        _config.DSM.DataDir,
		"dsm.LogLevel":       _config.DSM.LogLevel,
		"dsm.ID":             _config.DSM.ID,
		"dsm.Moniker":        _config.DSM.Moniker,
		"dsm.BindAddr":       _config.DSM.BindAddr,
		"dsm.AdvertiseAddr":  _config.DSM.AdvertiseAddr,
		"dsm.ServiceAddr":    _config.DSM.ServiceAddr,
		"dsm.NoService":      _config.DSM.NoService,
		"dsm.MaxPool":        _config.DSM.MaxPool,
		"dsm.TCPTimeout":     _config.DSM.TCPTimeout,
		"dsm.SendAttempts":   _config.DSM.SendAttempts,
		"dsm.SendBackoff":    _config.DSM.SendBackoff,
		"dsm.MaxSendBackoff": _config.DSM.MaxSendBackoff,
		"dsm.TieBreak":       _config.DSM.TieBreak,
		"dsm.Store":          _config.DSM.Store,
	}

	if _config.DSM.Store {
		logFields["dsm.DatabaseDir"] = _config.DSM.DatabaseDir
	}

	_config.DSM.Logger().WithFields(logFields).Debug("Config")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/dsm.toml (.json, .yaml also work)
	viper.SetConfigName("dsm")               // name of config file (without extension)
	viper.AddConfigPath(_config.DSM.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.DSM.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.DSM.Logger().Debugf("No config file found in: %s", _config.DSM.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
