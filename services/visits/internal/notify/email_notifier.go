package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/diagnosis/fieldops/pkg/directory"
	"github.com/diagnosis/fieldops/pkg/logger"
	"github.com/diagnosis/fieldops/pkg/mailer"
	"github.com/diagnosis/fieldops/services/visits/internal/domain"
	"github.com/diagnosis/fieldops/services/visits/internal/repository"
)

const completedSubject = "Your service visit is complete"

// Directory resolves the people a visit refers to by id.
type Directory interface {
	GetCustomer(ctx context.Context, id string) (*directory.Customer, error)
	GetTechnician(ctx context.Context, id string) (*directory.Technician, error)
}

// EmailNotifier tells the customer that a visit was completed. Every attempt
// leaves one VisitEmail record behind, PENDING first and then SENT or ERROR.
type EmailNotifier struct {
	emails    repository.EmailRepository
	directory Directory
	sender    mailer.Sender
	now       func() time.Time
}

func NewEmailNotifier(emails repository.EmailRepository, dir Directory, sender mailer.Sender) *EmailNotifier {
	return &EmailNotifier{
		emails:    emails,
		directory: dir,
		sender:    sender,
		now:       time.Now,
	}
}

func (n *EmailNotifier) OnVisitCompleted(ctx context.Context, visit domain.Visit) error {
	to, name, lookupErr := n.recipient(ctx, visit.CustomerID)

	record := domain.NewPendingEmail(visit.ID, to, completedSubject, n.now())
	if err := n.emails.CreateEmail(ctx, record); err != nil {
		return fmt.Errorf("record completion email: %w", err)
	}

	if lookupErr != nil {
		n.finish(ctx, record, lookupErr)
		return lookupErr
	}

	techName := n.technicianName(ctx, visit.TechnicianID)
	msgID, err := n.sender.Send(ctx, mailer.Message{
		ToEmail: to,
		ToName:  name,
		Subject: completedSubject,
		Text:    renderText(name, techName, visit),
		HTML:    renderHTML(name, techName, visit),
	})
	n.finish(ctx, record, err)
	if err != nil {
		return fmt.Errorf("send completion email: %w", err)
	}

	logger.InfoContext(ctx, "Completion email sent", "visit_id", visit.ID, "email_id", record.ID, "message_id", msgID)
	return nil
}

func (n *EmailNotifier) recipient(ctx context.Context, customerID string) (string, string, error) {
	if n.directory == nil {
		return "", "", fmt.Errorf("no customer directory configured")
	}
	cust, err := n.directory.GetCustomer(ctx, customerID)
	if err != nil {
		return "", "", err
	}
	email := strings.TrimSpace(cust.Email)
	if email == "" {
		return "", cust.Name, fmt.Errorf("customer %s has no email address", customerID)
	}
	return email, cust.Name, nil
}

// technicianName is display only; lookup failures fall back to the id.
func (n *EmailNotifier) technicianName(ctx context.Context, id string) string {
	if n.directory == nil {
		return id
	}
	tech, err := n.directory.GetTechnician(ctx, id)
	if err != nil || strings.TrimSpace(tech.Name) == "" {
		if err != nil {
			logger.DebugContext(ctx, "Technician lookup failed", "technician_id", id, "error", err)
		}
		return id
	}
	return tech.Name
}

func (n *EmailNotifier) finish(ctx context.Context, record *domain.VisitEmail, sendErr error) {
	status, msg := domain.EmailSent, ""
	if sendErr != nil {
		status, msg = domain.EmailError, sendErr.Error()
	}
	if err := n.emails.UpdateEmailStatus(ctx, record.ID, status, msg); err != nil {
		logger.ErrorContext(ctx, "Failed to update completion email status",
			"error", err, "email_id", record.ID, "visit_id", record.VisitID, "status", status)
	}
}

func renderText(customer, technician string, v domain.Visit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", fallback(customer, "there"))
	fmt.Fprintf(&b, "%s has completed your visit", technician)
	if v.CheckOutAt != nil {
		fmt.Fprintf(&b, " at %s", v.CheckOutAt.Format(time.RFC1123))
	}
	b.WriteString(".\n")
	if v.Purpose != "" {
		fmt.Fprintf(&b, "Purpose: %s\n", v.Purpose)
	}
	fmt.Fprintf(&b, "Visit reference: %s\n", v.ID)
	return b.String()
}

func renderHTML(customer, technician string, v domain.Visit) string {
	completed := ""
	if v.CheckOutAt != nil {
		completed = " at " + v.CheckOutAt.Format(time.RFC1123)
	}
	return fmt.Sprintf(`<p>Hi %s,</p>
<p>%s has completed your visit%s.</p>
<p>Visit reference: <b>%s</b></p>`,
		html.EscapeString(fallback(customer, "there")), html.EscapeString(technician), completed, v.ID)
}

func fallback(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
