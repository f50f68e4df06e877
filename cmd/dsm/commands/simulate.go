package commands

import (
	"fmt"
	"io/ioutil"

	"github.com/spf13/cobra"

	"github.com/mosaicnetworks/dsm/src/dsm"
	"github.com/mosaicnetworks/dsm/src/topology"
)

//NewSimulateCmd returns the command that runs every peer of a topology in
//this process
func NewSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "simulate",
		Short:   "Run all the peers of a topology in-memory and print their replicas",
		PreRunE: loadConfig,
		RunE:    simulate,
	}
	AddSimulateFlags(cmd)
	return cmd
}

//AddSimulateFlags adds flags to the Simulate command
func AddSimulateFlags(cmd *cobra.Command) {
	addCommonFlags(cmd)

	cmd.Flags().String("topology", _config.TopologyFile, "Topology file (default: topology.json in datadir)")
	cmd.Flags().Int("example", _config.Example, "Simulate built-in topology 1 (two peers on X,Y) or 2 (four peers, two groups sharing E)")
	cmd.Flags().Duration("sim-timeout", _config.Timeout, "Maximum duration of the simulation")
}

func simulate(cmd *cobra.Command, args []string) error {
	topo, err := loadTopology()
	if err != nil {
		_config.DSM.Logger().Error("Cannot load topology:", err)
		return err
	}

	// in-memory peers do not expose the HTTP service
	_config.DSM.NoService = true

	cluster, err := dsm.NewCluster(&_config.DSM, topo)
	if err != nil {
		return err
	}

	runErr := cluster.Run(_config.Timeout)

	out := cmd.OutOrStdout()

	cluster.Report(out)

	ds := cluster.CheckAgreement()
	fmt.Fprintln(out, dsm.Verdict(ds))

	if runErr != nil {
		return runErr
	}
	if len(ds) > 0 {
		return fmt.Errorf("%d disagreements", len(ds))
	}
	return nil
}

func loadTopology() (*topology.Topology, error) {
	if _config.Example != 0 {
		return topology.Sample(_config.Example)
	}

	if _config.TopologyFile == "" {
		return topology.NewJSONTopology(_config.DSM.DataDir).Topology()
	}

	data, err := ioutil.ReadFile(_config.TopologyFile)
	if err != nil {
		return nil, err
	}

	return topology.Decode(data)
}
