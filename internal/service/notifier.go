package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/timmy/marketplace/internal/domain"
	"github.com/timmy/marketplace/internal/logger"
	"github.com/timmy/marketplace/internal/mailer"
)

const maxMailedRowErrors = 20

// Notifier emails a summary of each run.
type Notifier struct {
	sender     mailer.Sender
	from       string
	recipients []string
}

// NewNotifier creates a notifier sending from from to recipients.
func NewNotifier(sender mailer.Sender, from string, recipients []string) *Notifier {
	return &Notifier{sender: sender, from: from, recipients: recipients}
}

// Notify sends the run summary. Delivery failures are logged and otherwise ignored.
func (n *Notifier) Notify(ctx context.Context, job *domain.ImportJob, uploader *domain.Uploader, summary *Summary) {
	msg := &mailer.Message{
		From:    n.from,
		To:      n.recipients,
		Subject: subjectFor(job.Status),
		Body:    summaryBody(job, uploader, summary),
	}

	result, err := n.sender.Send(ctx, msg)
	if err != nil {
		logger.FromContext(ctx).WithError(err).WithField("to", n.recipients).Error("Failed to send import notification")
		return
	}
	logger.FromContext(ctx).WithField("message_id", result.MessageID).Debug("Import notification sent")
}

func subjectFor(status domain.JobStatus) string {
	if status == domain.JobStatusCompleted {
		return "Import completed"
	}
	return "Import failed"
}

func summaryBody(job *domain.ImportJob, uploader *domain.Uploader, summary *Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", job.FileName)
	if uploader != nil {
		fmt.Fprintf(&b, "Uploaded by: %s (%s)\n", uploader.Username, uploader.Email)
		fmt.Fprintf(&b, "Shop: %s\n", uploader.ShopName)
	} else {
		fmt.Fprintf(&b, "Uploaded by: user #%d\n", job.UploaderID)
	}
	fmt.Fprintf(&b, "Job: %s\n", job.ID)
	fmt.Fprintf(&b, "Status: %s\n", job.Status)
	fmt.Fprintf(&b, "Total rows: %d\n", job.TotalRows)
	fmt.Fprintf(&b, "Successful rows: %d\n", job.SuccessfulRows)
	fmt.Fprintf(&b, "Failed rows: %d\n", job.FailedRows)

	if summary.Fatal != nil {
		fmt.Fprintf(&b, "\nImport aborted: %v\n", summary.Fatal)
	}
	if len(summary.RowErrors) > 0 {
		b.WriteString("\nRow errors:\n")
		for i, rowErr := range summary.RowErrors {
			if i == maxMailedRowErrors {
				fmt.Fprintf(&b, "... and %d more\n", len(summary.RowErrors)-i)
				break
			}
			fmt.Fprintf(&b, "- %v\n", rowErr)
		}
	}
	return b.String()
}
