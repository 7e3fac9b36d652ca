package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fellside/timekeeper/internal/capture"
	"github.com/fellside/timekeeper/internal/raceclock"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "record",
		Short: "Capture the current instant into the working queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireRace(); err != nil {
				return err
			}
			if _, err := ctx.sync.Refresh(cmd.Context()); err != nil {
				// Recording must work offline; sync failures are advisory.
				ctx.logger.Warn("sync before record failed", "error", err)
			}

			e, err := ctx.capture.Record()
			if err != nil {
				return err
			}
			fmt.Printf("recorded %s  %s  %s\n", e.ID, e.Kind, formatEntryTime(e))
			return nil
		},
	}
}

func newAssignCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <timestamp-id> <bib>",
		Short: "Assign a bib to a working timestamp and stage it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireRace(); err != nil {
				return err
			}

			bib, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid bib number %q", args[1])
			}
			if err := ctx.capture.Assign(args[0], bib); err != nil {
				return err
			}
			fmt.Printf("staged %s for bib %d\n", args[0], bib)
			return nil
		},
	}
}

func newUnstageCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unstage <timestamp-id>",
		Short: "Move a staged timestamp back to the working queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireRace(); err != nil {
				return err
			}
			if err := ctx.capture.Unstage(args[0]); err != nil {
				return err
			}
			fmt.Printf("unstaged %s\n", args[0])
			return nil
		},
	}
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <timestamp-id>",
		Short: "Discard a working timestamp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireRace(); err != nil {
				return err
			}
			if err := ctx.capture.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the working and staged queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireRace(); err != nil {
				return err
			}

			working := ctx.capture.Working()
			staged := ctx.capture.Staged()

			fmt.Printf("working (%d):\n", len(working))
			for _, e := range working {
				fmt.Printf("  %s  %-7s  %s\n", e.ID, e.Kind, formatEntryTime(e))
			}
			fmt.Printf("staged (%d):\n", len(staged))
			for _, e := range staged {
				fmt.Printf("  %s  %-7s  %s  bib %d\n", e.ID, e.Kind, formatEntryTime(e), e.BibNumber)
			}
			return nil
		},
	}
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var marshalName, checkpoint string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit the staged queue to the timing server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireRace(); err != nil {
				return err
			}

			if _, err := ctx.sync.Refresh(cmd.Context()); err != nil {
				return err
			}

			n := len(ctx.capture.Staged())
			if err := ctx.capture.Submit(cmd.Context(), marshalName, checkpoint); err != nil {
				return err
			}
			fmt.Printf("submitted %d timestamps to %s\n", n, checkpoint)
			return nil
		},
	}

	cmd.Flags().StringVar(&marshalName, "marshal", "", "Submitting marshal's name")
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "Finish", "Checkpoint the timestamps belong to")
	cmd.MarkFlagRequired("marshal")
	return cmd
}

// formatEntryTime renders an entry's time for display: race-relative entries
// as a stopwatch reading, unconverted offline entries as a wall-clock time.
// Conversion flips an entry's kind to online, so the kind alone decides.
func formatEntryTime(e capture.Entry) string {
	if e.Kind == capture.KindOffline {
		return time.UnixMilli(e.Time).Local().Format("15:04:05.000")
	}
	return raceclock.FormatElapsed(time.Duration(e.Time) * time.Millisecond)
}
