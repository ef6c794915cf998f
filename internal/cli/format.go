package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/diagnosis/fieldops/pkg/client"
)

// printJSON marshals v as indented JSON and writes it to out.
func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func printVisit(out io.Writer, v *client.Visit) {
	fmt.Fprintf(out, "Visit %s\n", v.ID)
	fmt.Fprintf(out, "  State:      %s\n", v.State)
	fmt.Fprintf(out, "  Priority:   %s\n", v.Priority)
	fmt.Fprintf(out, "  Customer:   %s\n", v.CustomerID)
	fmt.Fprintf(out, "  Site:       %s\n", v.SiteID)
	fmt.Fprintf(out, "  Technician: %s\n", v.TechnicianID)
	fmt.Fprintf(out, "  Scheduled:  %s .. %s\n", formatTime(&v.ScheduledStartAt), formatTime(&v.ScheduledEndAt))
	if v.Purpose != "" {
		fmt.Fprintf(out, "  Purpose:    %s\n", v.Purpose)
	}
	if v.CheckInAt != nil {
		fmt.Fprintf(out, "  Check-in:   %s\n", formatTime(v.CheckInAt))
	}
	if v.CheckOutAt != nil {
		fmt.Fprintf(out, "  Check-out:  %s\n", formatTime(v.CheckOutAt))
	}
}

func printVisitTable(out io.Writer, visits []client.Visit) error {
	if len(visits) == 0 {
		_, err := fmt.Fprintln(out, "No visits found.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "ID\tSTATE\tPRIORITY\tTECHNICIAN\tCUSTOMER\tSTART\tEND"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	for _, v := range visits {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			v.ID, v.State, v.Priority, v.TechnicianID, v.CustomerID,
			formatTime(&v.ScheduledStartAt), formatTime(&v.ScheduledEndAt)); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}
	return w.Flush()
}

func printEvents(out io.Writer, evs []client.Event) error {
	if len(evs) == 0 {
		_, err := fmt.Fprintln(out, "No events recorded.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "AT\tTYPE\tACTOR\tGEO\tPAYLOAD"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	for _, e := range evs {
		geo := "-"
		if e.GeoLat != nil && e.GeoLng != nil {
			geo = fmt.Sprintf("%.5f,%.5f", *e.GeoLat, *e.GeoLng)
		}
		actor := e.ActorID
		if actor == "" {
			actor = "-"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			formatTime(&e.CreatedAt), e.Type, actor, geo, truncate(e.Payload, 60)); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}
	return w.Flush()
}

func printNotes(out io.Writer, notes []client.Note) error {
	if len(notes) == 0 {
		_, err := fmt.Fprintln(out, "No notes.")
		return err
	}
	for _, n := range notes {
		if _, err := fmt.Fprintf(out, "[%s] %s %s: %s\n", formatTime(&n.CreatedAt), n.Visibility, n.AuthorID, n.Body); err != nil {
			return err
		}
	}
	return nil
}

func printEmails(out io.Writer, emails []client.Email) error {
	if len(emails) == 0 {
		_, err := fmt.Fprintln(out, "No emails sent.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "AT\tSTATUS\tTO\tSUBJECT\tERROR"); err != nil {
		return fmt.Errorf("writing table header: %w", err)
	}
	for _, e := range emails {
		errMsg := e.ErrorMessage
		if errMsg == "" {
			errMsg = "-"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			formatTime(&e.CreatedAt), e.Status, e.ToEmail, e.Subject, truncate(errMsg, 60)); err != nil {
			return fmt.Errorf("writing table row: %w", err)
		}
	}
	return w.Flush()
}

// truncate shortens s to max runes, ending in "..." when cut.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
