package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fellside/timekeeper/internal/raceclock"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Show a live race clock, re-syncing with the server until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireRace(); err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(cmd.Context())

			g.Go(func() error {
				return ctx.sync.Run(gctx)
			})
			g.Go(func() error {
				ctx.clock.Run(gctx, func(s raceclock.Snapshot) {
					line := renderSnapshot(s)
					if !ctx.capture.Online() {
						line = "OFFLINE " + line
					}
					fmt.Printf("\r%s", line)
				})
				return gctx.Err()
			})

			err := g.Wait()
			fmt.Println()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func renderSnapshot(s raceclock.Snapshot) string {
	switch s.Mode {
	case raceclock.ModeCountdown:
		return fmt.Sprintf("%-11s %s   ", s.Indicator, raceclock.FormatCountdown(s.Remaining))
	case raceclock.ModeLive, raceclock.ModePaused, raceclock.ModeFinished:
		badge := s.Indicator
		if badge == "" {
			badge = string(s.Mode)
		}
		return fmt.Sprintf("%-11s %s   ", badge, raceclock.FormatElapsed(s.Elapsed))
	default:
		if s.Indicator != "" {
			return fmt.Sprintf("%-11s waiting for start   ", s.Indicator)
		}
		return "idle                    "
	}
}
