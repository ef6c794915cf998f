package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/diagnosis/fieldops/pkg/client"
)

func newListCmd() *cobra.Command {
	var (
		opts     client.ListOptions
		from, to string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visits",
		Long: `List visits, newest schedule last. Filters combine.

Examples:
  visitctl list --technician tech-1 --state PLANNED
  visitctl list --from 2025-01-10T00:00:00Z --to 2025-01-10T23:59:59Z --size 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.From, err = parseOptionalTime("from", from); err != nil {
				return err
			}
			if opts.To, err = parseOptionalTime("to", to); err != nil {
				return err
			}

			page, err := newAPIClient().List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if isJSON() {
				return printJSON(out, page)
			}
			if err := printVisitTable(out, page.Items); err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "page %d, %d of %d\n", page.Page, len(page.Items), page.Total)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.CustomerID, "customer", "", "customer id")
	cmd.Flags().StringVar(&opts.TechnicianID, "technician", "", "technician id")
	cmd.Flags().StringVar(&opts.State, "state", "", "visit state (PLANNED|STARTED|DONE|CANCELLED|NO_SHOW)")
	cmd.Flags().StringVar(&from, "from", "", "earliest scheduled start (RFC 3339)")
	cmd.Flags().StringVar(&to, "to", "", "latest scheduled start (RFC 3339)")
	cmd.Flags().IntVar(&opts.Page, "page", 0, "zero-based page")
	cmd.Flags().IntVar(&opts.Size, "size", 0, "page size")

	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one visit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newAPIClient().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), v)
			}
			printVisit(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newTodayCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "today <technician-id>",
		Short: "List a technician's visits for one day",
		Long: `List a technician's visits scheduled on a UTC calendar day.

Examples:
  visitctl today tech-1
  visitctl today tech-1 --date 2025-01-10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var day time.Time
			if date != "" {
				var err error
				if day, err = time.Parse("2006-01-02", date); err != nil {
					return fmt.Errorf("invalid --date %q, want YYYY-MM-DD", date)
				}
			}

			visits, err := newAPIClient().Today(cmd.Context(), args[0], day)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), visits)
			}
			return printVisitTable(cmd.OutOrStdout(), visits)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day to list (YYYY-MM-DD, default: today)")

	return cmd
}

func newEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events <id>",
		Short: "Show a visit's audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			evs, err := newAPIClient().Events(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), evs)
			}
			return printEvents(cmd.OutOrStdout(), evs)
		},
	}
}

func newNotesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notes <id>",
		Short: "List a visit's notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			notes, err := newAPIClient().Notes(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), notes)
			}
			return printNotes(cmd.OutOrStdout(), notes)
		},
	}
}

func newEmailsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "emails <id>",
		Short: "List completion emails sent for a visit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			emails, err := newAPIClient().Emails(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), emails)
			}
			return printEmails(cmd.OutOrStdout(), emails)
		},
	}
}

func parseOptionalTime(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q, want RFC 3339", name, v)
	}
	return &t, nil
}
