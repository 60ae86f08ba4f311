package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeusync/doublezero/internal/core/store"
	"github.com/zeusync/doublezero/sdk/go/client"
)

// runPush registers a throwaway identity and pushes one record. The local
// store is ephemeral since nothing is pulled.
func runPush(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	var record any
	if err := json.Unmarshal([]byte(args[0]), &record); err != nil {
		return fmt.Errorf("record is not JSON: %w", err)
	}

	opts := cfg.Storage.StoreOptions(nil)
	st, err := store.New(ctx, store.KindEphemeral, opts)
	if err != nil {
		return err
	}
	defer st.Close()

	c, err := client.NewClient(cfg.Client, st, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	id, err := c.Register(ctx)
	if err != nil {
		return err
	}
	c.Enqueue(record)
	if err := c.Flush(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}
