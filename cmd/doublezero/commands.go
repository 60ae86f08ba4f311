package main

import (
	"github.com/spf13/cobra"

	"github.com/zeusync/doublezero/internal/config"
)

var (
	configPath string
	cfg        config.Config

	rootCmd = &cobra.Command{
		Use:           "doublezero",
		Short:         "Reactive document stores synced through an authority",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the authority",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	followCmd = &cobra.Command{
		Use:   "follow",
		Short: "Sync the local store with the authority and print every change",
		Args:  cobra.NoArgs,
		RunE:  runFollow,
	}

	pushCmd = &cobra.Command{
		Use:   "push [json record]",
		Short: "Register and push one record to the authority",
		Args:  cobra.ExactArgs(1),
		RunE:  runPush,
	}

	logCmd = &cobra.Command{
		Use:   "log",
		Short: "Inspect the persisted patch log of the local store",
	}
	logShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the snapshot and every logged patch",
		Args:  cobra.NoArgs,
		RunE:  runLogShow,
	}
	logVerifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Check that replaying the log reproduces the snapshot",
		Args:  cobra.NoArgs,
		RunE:  runLogVerify,
	}
	logCompactCmd = &cobra.Command{
		Use:   "compact",
		Short: "Replace the log with a single patch producing the snapshot",
		Args:  cobra.NoArgs,
		RunE:  runLogCompact,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file")

	serveCmd.Flags().String("listen", "", "override server.listen_addr")

	followCmd.Flags().Bool("stdin", false, "push every JSON line read from stdin")
	followCmd.Flags().String("transport", "", "override the client transport (http or websocket)")

	logCmd.PersistentFlags().String("store", "", "store name (defaults to storage.store)")
	logCmd.AddCommand(logShowCmd, logVerifyCmd, logCompactCmd)

	rootCmd.AddCommand(serveCmd, followCmd, pushCmd, logCmd)
}
