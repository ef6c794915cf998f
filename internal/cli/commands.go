package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/diagnosis/fieldops/pkg/client"
)

func newCreateCmd() *cobra.Command {
	var (
		in         client.CreateVisit
		start, end string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule a new visit",
		Long: `Schedule a new visit in the PLANNED state.

Examples:
  visitctl create --customer cust-1 --site site-1 --technician tech-1 \
    --start 2025-01-10T09:00:00Z --end 2025-01-10T10:00:00Z --priority HIGH`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := parseOptionalTime("start", start)
			if err != nil {
				return err
			}
			e, err := parseOptionalTime("end", end)
			if err != nil {
				return err
			}
			if s == nil || e == nil {
				return errors.New("--start and --end are required")
			}
			in.ScheduledStartAt, in.ScheduledEndAt = *s, *e
			in.Priority = strings.ToUpper(in.Priority)

			v, err := newAPIClient().Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printResult(cmd, v, "Visit scheduled")
		},
	}

	cmd.Flags().StringVar(&in.CustomerID, "customer", "", "customer id")
	cmd.Flags().StringVar(&in.SiteID, "site", "", "site id")
	cmd.Flags().StringVar(&in.TechnicianID, "technician", "", "technician id")
	cmd.Flags().StringVar(&start, "start", "", "scheduled start (RFC 3339)")
	cmd.Flags().StringVar(&end, "end", "", "scheduled end (RFC 3339)")
	cmd.Flags().StringVar(&in.Priority, "priority", "", "LOW|MEDIUM|HIGH (default MEDIUM)")
	cmd.Flags().StringVar(&in.Purpose, "purpose", "", "short purpose")
	cmd.Flags().StringVar(&in.NotesPlanned, "notes", "", "planning notes")

	return cmd
}

func newUpdateCmd() *cobra.Command {
	var start, end, technician, priority, purpose, notes string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a planned visit",
		Long: `Change the schedule, technician, priority, purpose or planning notes of a
PLANNED visit. Only the flags given are sent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in client.UpdateVisit
			var err error
			if in.ScheduledStartAt, err = parseOptionalTime("start", start); err != nil {
				return err
			}
			if in.ScheduledEndAt, err = parseOptionalTime("end", end); err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("technician") {
				in.TechnicianID = &technician
			}
			if flags.Changed("priority") {
				p := strings.ToUpper(priority)
				in.Priority = &p
			}
			if flags.Changed("purpose") {
				in.Purpose = &purpose
			}
			if flags.Changed("notes") {
				in.NotesPlanned = &notes
			}

			v, err := newAPIClient().Update(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			return printResult(cmd, v, "Visit updated")
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "scheduled start (RFC 3339)")
	cmd.Flags().StringVar(&end, "end", "", "scheduled end (RFC 3339)")
	cmd.Flags().StringVar(&technician, "technician", "", "technician id")
	cmd.Flags().StringVar(&priority, "priority", "", "LOW|MEDIUM|HIGH")
	cmd.Flags().StringVar(&purpose, "purpose", "", "short purpose")
	cmd.Flags().StringVar(&notes, "notes", "", "planning notes")

	return cmd
}

// geoFlags holds the optional --when, --lat and --lng flags shared by
// check-in and check-out.
type geoFlags struct {
	when     string
	lat, lng float64
}

func (g *geoFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&g.when, "when", "", "event time (RFC 3339, default: now)")
	cmd.Flags().Float64Var(&g.lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&g.lng, "lng", 0, "longitude")
}

func (g *geoFlags) resolve(cmd *cobra.Command) (when *time.Time, lat, lng *float64, err error) {
	if when, err = parseOptionalTime("when", g.when); err != nil {
		return nil, nil, nil, err
	}
	if cmd.Flags().Changed("lat") {
		lat = &g.lat
	}
	if cmd.Flags().Changed("lng") {
		lng = &g.lng
	}
	return when, lat, lng, nil
}

func newCheckInCmd() *cobra.Command {
	var (
		actor string
		geo   geoFlags
	)

	cmd := &cobra.Command{
		Use:   "check-in <id>",
		Short: "Start a planned visit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, lat, lng, err := geo.resolve(cmd)
			if err != nil {
				return err
			}
			v, err := newAPIClient().CheckIn(cmd.Context(), args[0], client.CheckIn{
				ActorID: actor, When: when, Lat: lat, Lng: lng,
			})
			if err != nil {
				return err
			}
			return printResult(cmd, v, "Checked in")
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "acting technician id")
	geo.register(cmd)

	return cmd
}

func newCheckOutCmd() *cobra.Command {
	var (
		actor, summary string
		geo            geoFlags
	)

	cmd := &cobra.Command{
		Use:   "check-out <id>",
		Short: "Complete a started visit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, lat, lng, err := geo.resolve(cmd)
			if err != nil {
				return err
			}
			v, err := newAPIClient().CheckOut(cmd.Context(), args[0], client.CheckOut{
				ActorID: actor, When: when, Lat: lat, Lng: lng, WorkSummary: summary,
			})
			if err != nil {
				return err
			}
			return printResult(cmd, v, "Checked out")
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "acting technician id")
	cmd.Flags().StringVarP(&summary, "summary", "s", "", "work summary")
	geo.register(cmd)

	return cmd
}

func newCancelCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a planned visit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient().Cancel(cmd.Context(), args[0], actor); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Visit %s cancelled\n", args[0])
			return err
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "acting user id")

	return cmd
}

func newNoShowCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "no-show <id>",
		Short: "Mark a planned visit as no-show",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newAPIClient().NoShow(cmd.Context(), args[0], actor); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Visit %s marked no-show\n", args[0])
			return err
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "acting user id")

	return cmd
}

func newNoteCmd() *cobra.Command {
	var author, visibility string

	cmd := &cobra.Command{
		Use:   "note <id> <body>",
		Short: "Add a note to a visit",
		Long: `Add a note to a visit in any state.

Examples:
  visitctl note v-123 "Gate code 4411" --author tech-1
  visitctl note v-123 "Parts on order" --visibility CUSTOMER`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			notes, err := newAPIClient().AddNote(cmd.Context(), args[0], client.AddNote{
				AuthorID:   author,
				Visibility: strings.ToUpper(visibility),
				Body:       args[1],
			})
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(cmd.OutOrStdout(), notes)
			}
			return printNotes(cmd.OutOrStdout(), notes)
		},
	}

	cmd.Flags().StringVar(&author, "author", "", "author id")
	cmd.Flags().StringVar(&visibility, "visibility", "", "INTERNAL|CUSTOMER (default INTERNAL)")

	return cmd
}

func printResult(cmd *cobra.Command, v *client.Visit, headline string) error {
	out := cmd.OutOrStdout()
	if isJSON() {
		return printJSON(out, v)
	}
	if _, err := fmt.Fprintf(out, "%s: %s\n", headline, v.ID); err != nil {
		return err
	}
	printVisit(out, v)
	return nil
}
