package main

import (
	"os"

	"treacle/cmd/run"
	"treacle/cmd/version"
	"treacle/cmd/wizard"
	"treacle/internal/flog"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "treacle",
	Short: "Bandwidth-throttled TCP forwarding proxy.",
	Long:  `treacle is a local forwarding proxy that caps throughput at a configured bytes-per-second ceiling, simulating a slow network link (dial-up modem, congested uplink) for testing how applications behave under constrained bandwidth.`,
}

func main() {
	rootCmd.AddCommand(run.Cmd)
	rootCmd.AddCommand(wizard.Cmd)
	rootCmd.AddCommand(version.Cmd)

	if err := rootCmd.Execute(); err != nil {
		flog.Errorf("%v", err)
		os.Exit(1)
	}
}
