package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var raceFlag int64
	var serverFlag string

	ctx := newCommandContext(&raceFlag, &serverFlag)

	rootCmd := &cobra.Command{
		Use:           "marshal",
		Short:         "Race timing client for course marshals",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().Int64Var(&raceFlag, "race", 0, "Race ID (overrides TIMEKEEPER_RACE)")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Timing server URL (overrides TIMEKEEPER_URL)")

	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newRacesCommand(ctx))
	rootCmd.AddCommand(newStartCommand(ctx))
	rootCmd.AddCommand(newFinishCommand(ctx))

	rootCmd.AddCommand(newRecordCommand(ctx))
	rootCmd.AddCommand(newAssignCommand(ctx))
	rootCmd.AddCommand(newUnstageCommand(ctx))
	rootCmd.AddCommand(newDeleteCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newSubmitCommand(ctx))

	rootCmd.AddCommand(newConflictsCommand(ctx))
	rootCmd.AddCommand(newResolveCommand(ctx))
	rootCmd.AddCommand(newRejectCommand(ctx))

	rootCmd.AddCommand(newWatchCommand(ctx))

	return rootCmd
}
