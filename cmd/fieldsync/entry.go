package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/cometa-fiber/fieldsync/internal/model"
	"github.com/cometa-fiber/fieldsync/internal/stages"
	"github.com/cometa-fiber/fieldsync/internal/store"
	"github.com/cometa-fiber/fieldsync/internal/ui"
)

var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Record and manage work entries",
}

var (
	entryProject  string
	entryCabinet  string
	entrySegment  string
	entryStage    string
	entryMeters   float64
	entryDate     string
	entryMethod   string
	entryWidth    float64
	entryDepth    float64
	entryNotes    string
	entryInteract bool
)

var entryNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Record a new work entry",
	Long: `Record completed work. The entry is saved locally right away and
synced to the backend in the background.

Dates accept natural language ("today", "yesterday", "last friday") or
the YYYY-MM-DD form.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()
		session := a.session()

		if entryInteract {
			if err := runEntryForm(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}
		if entryProject == "" || entryStage == "" {
			fmt.Fprintf(os.Stderr, "Error: --project and --stage are required (or use --interactive)\n")
			os.Exit(1)
		}

		date, err := parseDate(entryDate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		entry := model.WorkEntry{
			ProjectID:   entryProject,
			UserID:      session.UserID,
			Date:        date,
			StageCode:   model.StageCode(entryStage),
			MetersDoneM: entryMeters,
		}
		if entryCabinet != "" {
			entry.CabinetID = &entryCabinet
		}
		if entrySegment != "" {
			entry.SegmentID = &entrySegment
		}
		if entryMethod != "" {
			m := model.WorkMethod(entryMethod)
			entry.Method = &m
		}
		if entryWidth > 0 {
			entry.WidthM = &entryWidth
		}
		if entryDepth > 0 {
			entry.DepthM = &entryDepth
		}
		if entryNotes != "" {
			entry.Notes = &entryNotes
		}

		created, err := a.svc.CreateEntry(ctx, entry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(ui.OK("Entry recorded: " + created.ID))

		a.drain(ctx)
	},
}

// runEntryForm collects entry fields interactively.
func runEntryForm() error {
	var meters string

	catalog, err := stages.Catalog()
	if err != nil {
		return err
	}
	stageOptions := make([]huh.Option[string], 0, len(catalog))
	for _, def := range catalog {
		stageOptions = append(stageOptions,
			huh.NewOption(fmt.Sprintf("%d. %s", def.Order, def.Name), string(def.Code)))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Project ID").Value(&entryProject),
			huh.NewInput().Title("Segment ID (optional)").Value(&entrySegment),
			huh.NewSelect[string]().Title("Stage").Options(stageOptions...).Value(&entryStage),
			huh.NewInput().Title("Meters done").Value(&meters),
			huh.NewSelect[string]().Title("Method").
				Options(
					huh.NewOption("Excavator", "excavator"),
					huh.NewOption("Trencher", "trencher"),
					huh.NewOption("Mole", "mole"),
					huh.NewOption("By hand", "hand"),
					huh.NewOption("Documentation only", "documentation"),
				).Value(&entryMethod),
			huh.NewText().Title("Notes (optional)").Value(&entryNotes),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if meters != "" {
		f, err := strconv.ParseFloat(meters, 64)
		if err != nil {
			return fmt.Errorf("meters must be a number: %w", err)
		}
		entryMeters = f
	}
	return nil
}

// parseDate accepts YYYY-MM-DD or natural language.
func parseDate(s string) (string, error) {
	if s == "" {
		return time.Now().Format(model.DateFormat), nil
	}
	if _, err := time.Parse(model.DateFormat, s); err == nil {
		return s, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, time.Now())
	if err != nil || r == nil {
		return "", fmt.Errorf("could not parse date %q", s)
	}
	return r.Time.Format(model.DateFormat), nil
}

var (
	listRejected bool
	listPending  bool
	listDate     string
	listProject  string
)

var entryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your work entries from the local mirror",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()
		session := a.session()

		filter := store.EntryFilter{
			UserID:    session.UserID,
			ProjectID: listProject,
			Rejected:  listRejected,
			Pending:   listPending,
		}
		if listDate != "" {
			date, err := parseDate(listDate)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			filter.Date = date
		}

		entries, err := a.svc.ListEntries(ctx, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(ui.EntryTable(entries))
	},
}

var entryShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one work entry with its photos",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		entry, err := a.svc.GetEntry(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(ui.EntryLine(*entry))
		if entry.Notes != nil {
			fmt.Println(ui.Faint("notes: " + *entry.Notes))
		}

		photos, err := a.svc.ListPhotos(ctx, entry.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, p := range photos {
			status := "synced"
			if !p.Uploaded() {
				status = "pending upload"
			}
			fmt.Printf("  photo %s  %s  %s\n", p.ID, p.URL, ui.Faint(status))
		}
	},
}

var (
	resubmitMeters float64
	resubmitNotes  string
)

var entryResubmitCmd = &cobra.Command{
	Use:   "resubmit <id>",
	Short: "Fix and resubmit a rejected entry",
	Long: `Clear the rejection mark on an entry and queue it for re-review.
Optionally amend the measured values at the same time.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		err = a.svc.ResubmitEntry(ctx, args[0], func(e *model.WorkEntry) {
			if cmd.Flags().Changed("meters") {
				e.MetersDoneM = resubmitMeters
			}
			if cmd.Flags().Changed("notes") {
				e.Notes = &resubmitNotes
			}
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(ui.OK("Entry resubmitted"))

		a.drain(ctx)
	},
}

var rejectReason string

var entryApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve an entry (reviewers)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()
		session := a.session()

		if err := a.svc.ApproveEntry(ctx, args[0], session.UserID); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(ui.OK("Entry approved"))
	},
}

var entryRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject an entry with a reason (reviewers)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()
		session := a.session()

		if rejectReason == "" {
			fmt.Fprintf(os.Stderr, "Error: --reason is required\n")
			os.Exit(1)
		}

		if err := a.svc.RejectEntry(ctx, args[0], session.UserID, rejectReason); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(ui.OK("Entry rejected"))
	},
}

var entryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an unapproved entry",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		if !a.probe(ctx) {
			fmt.Fprintf(os.Stderr, "Error: deletion needs connectivity\n")
			os.Exit(1)
		}
		if err := a.svc.DeleteEntry(ctx, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Entry deleted")
	},
}

func init() {
	entryNewCmd.Flags().StringVar(&entryProject, "project", "", "project id")
	entryNewCmd.Flags().StringVar(&entryCabinet, "cabinet", "", "cabinet id")
	entryNewCmd.Flags().StringVar(&entrySegment, "segment", "", "segment id")
	entryNewCmd.Flags().StringVar(&entryStage, "stage", "", "stage code")
	entryNewCmd.Flags().Float64Var(&entryMeters, "meters", 0, "meters completed")
	entryNewCmd.Flags().StringVar(&entryDate, "date", "", "work date (natural language ok)")
	entryNewCmd.Flags().StringVar(&entryMethod, "method", "", "work method")
	entryNewCmd.Flags().Float64Var(&entryWidth, "width", 0, "trench width in meters")
	entryNewCmd.Flags().Float64Var(&entryDepth, "depth", 0, "trench depth in meters")
	entryNewCmd.Flags().StringVar(&entryNotes, "notes", "", "free-form notes")
	entryNewCmd.Flags().BoolVarP(&entryInteract, "interactive", "i", false, "fill the entry in a form")

	entryListCmd.Flags().BoolVar(&listRejected, "rejected", false, "only rejected entries")
	entryListCmd.Flags().BoolVar(&listPending, "pending", false, "only entries awaiting review")
	entryListCmd.Flags().StringVar(&listDate, "date", "", "only entries for this date")
	entryListCmd.Flags().StringVar(&listProject, "project", "", "only entries for this project")

	entryResubmitCmd.Flags().Float64Var(&resubmitMeters, "meters", 0, "corrected meters")
	entryResubmitCmd.Flags().StringVar(&resubmitNotes, "notes", "", "corrected notes")

	entryRejectCmd.Flags().StringVar(&rejectReason, "reason", "", "why the entry is rejected")

	entryCmd.AddCommand(entryNewCmd)
	entryCmd.AddCommand(entryListCmd)
	entryCmd.AddCommand(entryShowCmd)
	entryCmd.AddCommand(entryResubmitCmd)
	entryCmd.AddCommand(entryApproveCmd)
	entryCmd.AddCommand(entryRejectCmd)
	entryCmd.AddCommand(entryDeleteCmd)
}
