package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/sujalmh/vector-loader-automation/internal/core/domain"
	"github.com/sujalmh/vector-loader-automation/internal/progress"
	"github.com/sujalmh/vector-loader-automation/internal/stream"
	"github.com/sujalmh/vector-loader-automation/internal/tracker"
)

// replayResult is the JSON document printed by the replay command.
type replayResult struct {
	State    stream.State     `json:"state"`
	Error    string           `json:"error,omitempty"`
	Summary  progress.Summary `json:"summary"`
	Entities []domain.Entity  `json:"entities"`
}

func replayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "run a captured event stream through the tracker and print the result",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "captured text/event-stream body",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:     "id",
				Usage:    "entity id to track (repeatable)",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "chunk",
				Value: stream.DefaultChunkSize,
				Usage: "read size in bytes, small values exercise frame reassembly",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "warn",
				Usage: "debug, info, warn or error",
			},
		},
		Action: replay,
	}
}

func replay(ctx context.Context, cmd *cli.Command) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	path := cmd.String("file")
	chunk := int(cmd.Int("chunk"))
	if chunk <= 0 {
		return fmt.Errorf("chunk must be positive, got %d", chunk)
	}

	ids := make([]domain.EntityID, 0, len(cmd.StringSlice("id")))
	for _, id := range cmd.StringSlice("id") {
		ids = append(ids, domain.EntityID(id))
	}

	opener := stream.OpenerFunc(func(ctx context.Context, _ []domain.EntityID) (stream.ByteSource, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		return stream.NewReaderSource(f, chunk), nil
	})

	c := stream.New(tracker.New(), opener, stream.WithLogger(logger))
	if _, err := c.Start(ctx, ids); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	term, err := c.Wait(waitCtx)
	if err != nil {
		_ = c.Cancel()
		return fmt.Errorf("wait for replay: %w", err)
	}

	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}
	if err := writeResult(out, term); err != nil {
		return err
	}

	if term.State == stream.StateFailed {
		return fmt.Errorf("replay failed: %s", term.ErrorMessage())
	}
	return nil
}

func writeResult(w io.Writer, term stream.Terminal) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(replayResult{
		State:    term.State,
		Error:    term.ErrorMessage(),
		Summary:  term.Summary,
		Entities: term.Snapshot.Entities,
	})
}
