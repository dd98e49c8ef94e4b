package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cometa-fiber/fieldsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Inspect and drive the sync queue",
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Push queued changes to the backend",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()
		a.session()

		a.drain(ctx)

		counts, err := a.queue.Counts(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(ui.QueueSummary(counts))
	},
}

var statusVerbose bool

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and queue state",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		a.probe(ctx)
		fmt.Println(ui.Connectivity(a.monitor.Online()))

		counts, err := a.queue.Counts(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(ui.QueueSummary(counts))

		if statusVerbose {
			items, err := a.queue.List(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(ui.QueueItems(items))
		}

		if last, err := a.queue.LastSyncedAt(ctx); err == nil && !last.IsZero() {
			fmt.Println(ui.Faint("last sync: " + last.Local().Format("2006-01-02 15:04:05")))
		}

		mirror, err := a.store.Counts(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(ui.Faint(fmt.Sprintf("mirror: %d entries, %d photos, %d projects",
			mirror["work_entries"], mirror["photos"], mirror["projects"])))
	},
}

var syncRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Requeue failed items and sync",
	Long: `Move items that exhausted their retry budget back to pending with a
fresh budget, then push the queue.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		n, err := a.queue.ResetFailedToPending(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Requeued %d failed item(s)\n", n)

		if n > 0 {
			a.drain(ctx)
		}
	},
}

var syncClearFailedCmd = &cobra.Command{
	Use:   "clear-failed",
	Short: "Drop failed items from the queue",
	Long: `Discard items that exhausted their retry budget. The local mirror
keeps its optimistic copy; discard means the change never reaches the
backend.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		n, err := a.queue.PurgeFailed(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Dropped %d failed item(s)\n", n)
	},
}

func init() {
	syncStatusCmd.Flags().BoolVarP(&statusVerbose, "verbose", "v", false, "list individual queue items")

	syncCmd.AddCommand(syncNowCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncRetryCmd)
	syncCmd.AddCommand(syncClearFailedCmd)
}
