package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X treacle/cmd/version.Version=...".
var Version = "dev"

var Cmd = &cobra.Command{
	Use:   "version",
	Short: "Print the treacle version.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("treacle %s\n", Version)
	},
}
