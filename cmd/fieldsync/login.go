package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cometa-fiber/fieldsync/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:   "login <phone>",
	Short: "Sign in with phone number and PIN",
	Long: `Sign in to the backend. The PIN is prompted, never passed on the
command line. The session is cached so subsequent commands work offline.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		fmt.Print("PIN: ")
		pin, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading PIN: %v\n", err)
			os.Exit(1)
		}

		session, err := a.auth.LoginPIN(ctx, args[0], string(pin))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(ui.OK(fmt.Sprintf("Signed in as %s (%s)", session.UserID, session.Role)))
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the cached session",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		if err := a.auth.Logout(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Signed out")
	},
}
