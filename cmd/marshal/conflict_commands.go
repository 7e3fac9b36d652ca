package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fellside/timekeeper/internal/raceclock"
)

func newConflictsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List participants with conflicting finish times",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireRace(); err != nil {
				return err
			}

			conflicts, err := ctx.client.Conflicts(cmd.Context(), ctx.cfg.RaceID)
			if err != nil {
				return err
			}
			if len(conflicts) == 0 {
				fmt.Println("no conflicts")
				return nil
			}

			for _, c := range conflicts {
				current := "—"
				if c.TimeFinished != nil {
					current = raceclock.FormatElapsed(time.Duration(*c.TimeFinished) * time.Millisecond)
				}
				fmt.Printf("bib %d  %s %s  current %s\n", c.BibNumber, c.FirstName, c.LastName, current)
				for _, p := range c.PendingTimes {
					fmt.Printf("  pending %s (%d ms)  by %s at %s\n",
						raceclock.FormatElapsed(time.Duration(p.Time)*time.Millisecond),
						p.Time, p.SubmittedBy, p.SubmittedAt)
				}
			}
			return nil
		},
	}
}

func newResolveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <bib> <time-ms>",
		Short: "Accept a finish time for a participant, clearing the conflict",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireRace(); err != nil {
				return err
			}

			bib, timeMillis, err := parseBibTime(args)
			if err != nil {
				return err
			}
			if err := ctx.client.ResolveConflict(cmd.Context(), ctx.cfg.RaceID, bib, timeMillis); err != nil {
				return err
			}
			fmt.Printf("bib %d resolved to %s\n", bib,
				raceclock.FormatElapsed(time.Duration(timeMillis)*time.Millisecond))
			return nil
		},
	}
}

func newRejectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <bib> <time-ms>",
		Short: "Reject one pending finish time for a participant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireRace(); err != nil {
				return err
			}

			bib, timeMillis, err := parseBibTime(args)
			if err != nil {
				return err
			}
			if err := ctx.client.RejectTimestamp(cmd.Context(), ctx.cfg.RaceID, bib, timeMillis); err != nil {
				return err
			}
			fmt.Printf("rejected %d ms for bib %d\n", timeMillis, bib)
			return nil
		},
	}
}

func parseBibTime(args []string) (int, int64, error) {
	bib, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid bib number %q", args[0])
	}
	timeMillis, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q", args[1])
	}
	return bib, timeMillis, nil
}
