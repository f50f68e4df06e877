package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for dsm
var RootCmd = &cobra.Command{
	Use:              "dsm",
	Short:            "Lamport-ordered distributed shared memory",
	TraverseChildren: true,
}
