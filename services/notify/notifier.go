package notify

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/coursehub/core"
	"github.com/trezcool/coursehub/core/enrollment"
	"github.com/trezcool/coursehub/core/settings"
)

// Task results
const (
	ResultSent     = "sent"
	ResultSkipped  = "skipped"
	ResultFailed   = "failed"
	ResultPanicked = "panicked"
)

var subjects = map[settings.EventType]string{
	settings.CourseEnrolled:  "You are enrolled!",
	settings.CourseCompleted: "Course completed",
}

// EmailNotifier sends notifications by email, using the template named after the event type.
type EmailNotifier struct {
	mailSvc  core.EmailService
	tmpls    *core.EmailTemplates
	recorder Recorder
}

var _ enrollment.Notifier = (*EmailNotifier)(nil) // interface compliance check

func NewEmailNotifier(mailSvc core.EmailService, tmpls *core.EmailTemplates, recorder Recorder) *EmailNotifier {
	return &EmailNotifier{
		mailSvc:  mailSvc,
		tmpls:    tmpls,
		recorder: recorder,
	}
}

// Notify renders and queues the email for evt, unless snap disables evt or the recipient has no address.
func (n *EmailNotifier) Notify(
	ctx context.Context,
	snap settings.Snapshot,
	recipient mail.Address,
	evt settings.EventType,
	data map[string]interface{},
) error {
	if !snap.Enabled(evt) || recipient.Address == "" {
		n.record(evt, ResultSkipped)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !n.tmpls.Has(string(evt)) {
		return errors.Errorf("no email template for %q", evt)
	}

	tmplData := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		tmplData[k] = v
	}
	tmplData["Name"] = recipient.Name

	msg := &core.EmailMessage{
		To:           []mail.Address{recipient},
		Subject:      subjects[evt],
		TemplateName: string(evt),
		TemplateData: tmplData,
	}
	if err := msg.Render(n.tmpls); err != nil {
		return errors.Wrapf(err, "rendering %s email", evt)
	}
	n.mailSvc.SendMessages(msg)
	n.record(evt, ResultSent)
	return nil
}

func (n *EmailNotifier) record(evt settings.EventType, result string) {
	if n.recorder != nil {
		n.recorder.RecordNotification(string(evt), result)
	}
}
