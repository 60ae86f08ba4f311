package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zeusync/doublezero/internal/core/document"
	"github.com/zeusync/doublezero/internal/core/observability/log"
	"github.com/zeusync/doublezero/internal/core/protocol"
	"github.com/zeusync/doublezero/internal/injector"
	"github.com/zeusync/doublezero/sdk/go/client"
)

func runFollow(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if transport, _ := cmd.Flags().GetString("transport"); transport != "" {
		cfg.Client.Transport = transport
	}

	follower, cleanup, err := injector.InitializeFollower(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	defer follower.Client.Close()

	out := cmd.OutOrStdout()
	printDoc := func(doc document.Document) {
		raw, err := json.Marshal(doc)
		if err != nil {
			follower.Logger.Warn("Unprintable document", log.Error(err))
			return
		}
		fmt.Fprintln(out, string(raw))
	}

	sub := follower.Store.Subscribe(printDoc)
	defer sub.Cancel()
	printDoc(follower.Store.Read())

	follower.Client.OnEvent(func(e client.Event) {
		if e.Type == client.EventTypeStreamClosed {
			follower.Logger.Warn("Stream closed", log.Any("data", e.Data))
		}
	})

	if readStdin, _ := cmd.Flags().GetBool("stdin"); readStdin {
		go enqueueLines(ctx, cmd.InOrStdin(), follower)
	}

	err = follower.Client.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// enqueueLines queues every JSON line of r for the next flush.
func enqueueLines(ctx context.Context, r io.Reader, f *injector.Follower) {
	frames := protocol.NewFrameReader(r, cfg.Client.Protocol.MaxMessageSize)
	for ctx.Err() == nil {
		frame, err := frames.ReadFrame()
		if errors.Is(err, protocol.ErrMessageTooLarge) {
			f.Logger.Warn("Skipping input line", log.Error(err))
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				f.Logger.Error("Reading input failed", log.Error(err))
			}
			return
		}
		var record any
		if err := json.Unmarshal(frame, &record); err != nil {
			f.Logger.Warn("Input line is not JSON", log.Error(err))
			continue
		}
		f.Client.Enqueue(record)
	}
}
