package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "civicsync-api",
		Short: "Civic issue tracker API with a conversational assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
		SilenceUsage: true,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Purge conversations untouched for seven days and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sweep(cmd.Context(), cmd)
		},
	})
	return cmd
}
