package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fellside/timekeeper/internal/raceclock"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Sync with the server and show race and queue state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireRace(); err != nil {
				return err
			}

			timing, err := ctx.sync.Refresh(cmd.Context())
			if err != nil {
				return err
			}

			snap := ctx.clock.Snapshot()
			fmt.Printf("Race:     %s (#%d)\n", timing.Name, ctx.cfg.RaceID)
			fmt.Printf("Online:   %v\n", ctx.capture.Online())
			fmt.Printf("Clock:    %s", snap.Mode)
			if snap.Indicator != "" {
				fmt.Printf(" [%s]", snap.Indicator)
			}
			fmt.Println()
			switch snap.Mode {
			case raceclock.ModeCountdown:
				fmt.Printf("Starts:   %s\n", raceclock.FormatCountdown(snap.Remaining))
			case raceclock.ModeLive, raceclock.ModePaused, raceclock.ModeFinished:
				fmt.Printf("Elapsed:  %s\n", raceclock.FormatElapsed(snap.Elapsed))
			}
			fmt.Printf("Queues:   %d working, %d staged\n",
				len(ctx.capture.Working()), len(ctx.capture.Staged()))
			return nil
		},
	}
}

func newRacesCommand(ctx *commandContext) *cobra.Command {
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "races",
		Short: "List races on the timing server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensure(); err != nil {
				return err
			}

			resp, err := ctx.client.Races(cmd.Context(), page, pageSize)
			if err != nil {
				return err
			}

			for _, r := range resp.Races {
				state := "not started"
				switch {
				case r.TimeFinished != nil:
					state = "finished"
				case r.TimeStarted != nil:
					state = "live"
				case r.ScheduledStart != nil:
					state = "scheduled " + time.UnixMilli(*r.ScheduledStart).Local().Format("2006-01-02 15:04")
				}
				fmt.Printf("#%d  %-30s %-20s %s (%d participants)\n",
					r.RaceID, r.RaceName, r.RaceLocation, state, r.Participants)
			}
			fmt.Printf("page %d of %d (%d races)\n",
				resp.Pagination.Page, resp.Pagination.TotalPages, resp.Pagination.Total)
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 10, "Races per page")
	return cmd
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the race now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireRace(); err != nil {
				return err
			}

			now := time.Now().UnixMilli()
			if err := ctx.client.UpdateStartTime(cmd.Context(), ctx.cfg.RaceID, now); err != nil {
				return err
			}
			if _, err := ctx.sync.Refresh(cmd.Context()); err != nil {
				return err
			}

			fmt.Printf("race #%d started\n", ctx.cfg.RaceID)
			return nil
		},
	}
}

func newFinishCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "finish",
		Short: "Finish the race now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireRace(); err != nil {
				return err
			}

			now := time.Now().UnixMilli()
			if err := ctx.client.UpdateFinishTime(cmd.Context(), ctx.cfg.RaceID, now); err != nil {
				return err
			}
			if _, err := ctx.sync.Refresh(cmd.Context()); err != nil {
				return err
			}

			fmt.Printf("race #%d finished\n", ctx.cfg.RaceID)
			return nil
		},
	}
}
