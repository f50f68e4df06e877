// Package config defines the configuration of a dsm node.
//
// The Config object is built with default values by NewDefaultConfig and is
// usually overridden by command line flags and an optional dsm.toml (or .yaml,
// .json) file in the data directory. The data directory also holds the
// topology file that describes the peers, their subscriptions, and the
// operations they submit.
package config
