// Package cli defines the cobra command tree for visitctl.
package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/diagnosis/fieldops/pkg/client"
)

var (
	flagFormat  string
	flagServer  string
	flagTimeout time.Duration
)

// NewRootCmd creates the root cobra command with global flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "visitctl",
		Short:         "Operate field service visits",
		Long:          "A command line client for the visits service. Schedule visits, check technicians in and out, and inspect audit trails.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format (text|json)")
	root.PersistentFlags().StringVar(&flagServer, "server", "", "visits service URL (default: $VISITS_SERVER_URL or http://localhost:8080)")
	root.PersistentFlags().DurationVar(&flagTimeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(
		newListCmd(),
		newGetCmd(),
		newTodayCmd(),
		newCreateCmd(),
		newUpdateCmd(),
		newCheckInCmd(),
		newCheckOutCmd(),
		newCancelCmd(),
		newNoShowCmd(),
		newEventsCmd(),
		newNotesCmd(),
		newNoteCmd(),
		newEmailsCmd(),
		newWatchCmd(),
	)

	return root
}

// getServerURL returns the server URL from the flag, env var, or default.
func getServerURL() string {
	if flagServer != "" {
		return flagServer
	}
	if v := os.Getenv("VISITS_SERVER_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func newAPIClient() *client.Client {
	return client.New(getServerURL(), flagTimeout)
}

func isJSON() bool {
	return flagFormat == "json"
}
