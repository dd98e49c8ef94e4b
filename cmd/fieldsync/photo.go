package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cometa-fiber/fieldsync/internal/model"
	"github.com/cometa-fiber/fieldsync/internal/ui"
)

var photoCmd = &cobra.Command{
	Use:   "photo",
	Short: "Attach and manage work photos",
}

var (
	photoProject string
	photoEntry   string
	photoLabel   string
	photoLat     float64
	photoLon     float64
)

var photoAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Queue a photo for upload",
	Long: `Read an image file and queue it for upload. The photo record is
visible immediately with a placeholder URL; the binary reaches the blob
store on the next sync.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()
		session := a.session()

		if photoProject == "" {
			fmt.Fprintf(os.Stderr, "Error: --project is required\n")
			os.Exit(1)
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", args[0], err)
			os.Exit(1)
		}

		photo := model.Photo{
			TS:           time.Now().Format(time.RFC3339),
			AuthorUserID: &session.UserID,
		}
		if photoEntry != "" {
			photo.WorkEntryID = &photoEntry
		}
		if photoLabel != "" {
			l := model.PhotoLabel(photoLabel)
			photo.Label = &l
		}
		if cmd.Flags().Changed("lat") {
			photo.GPSLat = &photoLat
		}
		if cmd.Flags().Changed("lon") {
			photo.GPSLon = &photoLon
		}

		created, err := a.svc.AddPhoto(ctx, photo, photoProject, data, "image/jpeg")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(ui.OK("Photo queued: " + created.ID))

		a.drain(ctx)
	},
}

var photoListCmd = &cobra.Command{
	Use:   "list <entry-id>",
	Short: "List photos attached to a work entry",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		photos, err := a.svc.ListPhotos(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(photos) == 0 {
			fmt.Println("no photos")
			return
		}
		for _, p := range photos {
			status := "synced"
			if !p.Uploaded() {
				status = "pending upload"
			}
			label := ""
			if p.Label != nil {
				label = string(*p.Label)
			}
			fmt.Printf("%s  %-10s  %s  %s\n", p.ID, label, p.URL, ui.Faint(status))
		}
	},
}

var linkEntry string

var photoLinkCmd = &cobra.Command{
	Use:   "link <photo-id>...",
	Short: "Attach already-queued photos to a work entry",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		if linkEntry == "" {
			fmt.Fprintf(os.Stderr, "Error: --entry is required\n")
			os.Exit(1)
		}
		a.probe(ctx)

		if err := a.svc.LinkPhotos(ctx, args, linkEntry); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(ui.OK(fmt.Sprintf("Linked %d photo(s) to %s", len(args), linkEntry)))
	},
}

var photoDeleteCmd = &cobra.Command{
	Use:   "delete <photo-id>",
	Short: "Remove a photo from the local mirror",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		if bs := a.openBlobs(ctx); bs != nil {
			a.svc.SetBlobRemover(bs)
		}
		if err := a.svc.DeletePhoto(ctx, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Photo deleted")
	},
}

func init() {
	photoAddCmd.Flags().StringVar(&photoProject, "project", "", "project id")
	photoAddCmd.Flags().StringVar(&photoEntry, "entry", "", "work entry to attach to")
	photoAddCmd.Flags().StringVar(&photoLabel, "label", "", "photo label (before, during, after, instrument, other)")
	photoAddCmd.Flags().Float64Var(&photoLat, "lat", 0, "GPS latitude")
	photoAddCmd.Flags().Float64Var(&photoLon, "lon", 0, "GPS longitude")

	photoLinkCmd.Flags().StringVar(&linkEntry, "entry", "", "work entry id")

	photoCmd.AddCommand(photoAddCmd)
	photoCmd.AddCommand(photoListCmd)
	photoCmd.AddCommand(photoLinkCmd)
	photoCmd.AddCommand(photoDeleteCmd)
}
