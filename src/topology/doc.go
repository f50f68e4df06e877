// Package topology loads the static description of a run: the peers, the
// subscription group of every variable, and the queue of SET operations each
// peer issues at start.
//
// The topology is read once from a JSON file (topology.json in the data
// directory) and validated before any protocol message is sent. Every
// inconsistency is reported as a *ConfigError.
//
//	{
//	  "peers":      [{"id": 1, "net_addr": "127.0.0.1:1337", "moniker": "p1"}],
//	  "variables":  {"X": [1, 2], "Y": [1, 2]},
//	  "operations": {"1": [{"var": "X", "value": 5}]}
//	}
//
// A Directory is the per-peer view of the subscriptions that the ordering
// protocol consults when fanning out PREPARE and NOTIFY messages.
package topology
