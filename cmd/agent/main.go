package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "agent",
		Short: "Autonomous leveraged-trading agent",
		Long: "Runs the decision-and-execution core: a live market feed, a " +
			"capital-health state machine, a risk policy and an oracle-driven " +
			"decision loop over a finite, self-managed capital base.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
