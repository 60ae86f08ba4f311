package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeusync/doublezero/internal/core/patch"
	"github.com/zeusync/doublezero/internal/core/patchlog"
	"github.com/zeusync/doublezero/internal/core/storage/badger"
)

// withLog opens the configured database read-write and hands fn the
// patch log of the selected store.
func withLog(cmd *cobra.Command, fn func(*patchlog.Log) error) error {
	name, _ := cmd.Flags().GetString("store")
	if name == "" {
		name = cfg.Storage.Store
	}

	bcfg := cfg.Storage.Badger
	bcfg.GCInterval = 0
	db, err := badger.Open(bcfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(patchlog.New(db.Partition(cfg.Storage.Partition), name))
}

func runLogShow(cmd *cobra.Command, _ []string) error {
	return withLog(cmd, func(l *patchlog.Log) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		doc, found, err := l.Snapshot(ctx)
		if err != nil {
			return err
		}
		if !found {
			fmt.Fprintf(out, "store %q has no snapshot\n", l.Name())
			return nil
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "snapshot: %s\n", raw)

		entries, err := l.ReadAll(ctx)
		if err != nil {
			return err
		}
		for i, p := range entries {
			raw, err := patch.Encode(p)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%4d: %s\n", i, raw)
		}
		return nil
	})
}

func runLogVerify(cmd *cobra.Command, _ []string) error {
	return withLog(cmd, func(l *patchlog.Log) error {
		if err := l.Verify(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "store %q: log replays to the snapshot\n", l.Name())
		return nil
	})
}

func runLogCompact(cmd *cobra.Command, _ []string) error {
	return withLog(cmd, func(l *patchlog.Log) error {
		if err := l.Compact(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "store %q compacted\n", l.Name())
		return nil
	})
}
