package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	snapshotList    bool
	snapshotRestore string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Archive, list or restore state snapshots",
	Long:  "Copy the state file to the configured archive (localfs or s3), list archived snapshots, or restore one",
	Args:  cobra.NoArgs,
	RunE:  runSnapshot,
}

func init() {
	snapshotCmd.Flags().BoolVar(&snapshotList, "list", false, "List archived snapshots")
	snapshotCmd.Flags().StringVar(&snapshotRestore, "restore", "", "Restore the named snapshot")
	snapshotCmd.MarkFlagsMutuallyExclusive("list", "restore")
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	a, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	switch {
	case snapshotList:
		names, err := a.Snapshots(ctx)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No snapshots")
		}
		for _, n := range names {
			fmt.Println(n)
		}
	case snapshotRestore != "":
		if !a.Restore(ctx, snapshotRestore) {
			return fmt.Errorf("failed to restore %s", snapshotRestore)
		}
		fmt.Printf("Restored %s (%d investments)\n", snapshotRestore, a.Tracker().Len())
	default:
		if !a.Snapshot(ctx) {
			return fmt.Errorf("snapshot failed, is storage.archive configured?")
		}
		fmt.Println("Snapshot created")
	}
	return nil
}
