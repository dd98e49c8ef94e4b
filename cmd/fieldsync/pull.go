package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cometa-fiber/fieldsync/internal/ui"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Refresh the local mirror from the backend",
	Long: `Download reference data (projects, cabinets, segments, documents)
and your work entries into the local mirror. Requires connectivity.
Queued local changes are not touched.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		session := a.session()
		if !a.probe(ctx) {
			fmt.Fprintf(os.Stderr, "Error: backend unreachable; pull needs connectivity\n")
			os.Exit(1)
		}

		res, err := a.svc.Pull(ctx, session.UserID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(ui.OK("Pull complete"))
		fmt.Printf("   Projects: %d\n", res.Projects)
		fmt.Printf("   Cabinets: %d\n", res.Cabinets)
		fmt.Printf("   Segments: %d\n", res.Segments)
		fmt.Printf("   Work entries: %d (%d photos)\n", res.WorkEntries, res.Photos)
		fmt.Printf("   Documents: %d (%d categories)\n", res.WorkerDocuments, res.DocumentCategories)
	},
}
