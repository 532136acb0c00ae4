package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"strings"

	mail "github.com/go-mail/mail/v2"
	"github.com/rs/zerolog"

	"ip-workflow-service/internal/config"
	"ip-workflow-service/internal/service"
)

type sender interface {
	DialAndSend(m ...*mail.Message) error
}

// MailNotifier mails workflow events to the IP office inbox. Submitter-side
// events also go to the acting applicant as a receipt.
type MailNotifier struct {
	dialer sender
	from   string
	admins []string
	log    zerolog.Logger
}

func NewMailNotifier(smtp config.SMTPConfig, notify config.NotifyConfig, log zerolog.Logger) *MailNotifier {
	d := mail.NewDialer(smtp.Host, smtp.Port, smtp.User, smtp.Password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         smtp.Host,
		InsecureSkipVerify: smtp.SkipTLSVerify,
	}
	d.Timeout = notify.Timeout

	return &MailNotifier{
		dialer: d,
		from:   smtp.From,
		admins: notify.AdminEmails,
		log:    log,
	}
}

func (n *MailNotifier) Notify(ctx context.Context, ev service.Event) error {
	to := Recipients(ev, n.admins)
	if len(to) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body, err := Render(ev)
	if err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send %s mail: %w", ev.Kind, err)
	}
	n.log.Debug().Str("kind", string(ev.Kind)).Strs("to", to).Msg("notification mailed")
	return nil
}

// Recipients lists who hears about ev, without duplicates.
func Recipients(ev service.Event, admins []string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(addr string) {
		addr = strings.TrimSpace(addr)
		key := strings.ToLower(addr)
		if addr == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, addr)
	}
	for _, a := range admins {
		add(a)
	}
	if submitterEvent(ev) {
		add(ev.ActorEmail)
	}
	return out
}

func submitterEvent(ev service.Event) bool {
	if ev.ActorID == nil || *ev.ActorID != ev.OwnerID {
		return false
	}
	switch ev.Kind {
	case service.KindSubmitted, service.KindRevisionSubmitted, service.KindDocumentUploaded:
		return true
	}
	return false
}

var headlines = map[service.EventKind]string{
	service.KindSubmitted:             "submitted for review",
	service.KindReviewStarted:         "under review",
	service.KindStageAdvanced:         "moved to the next stage",
	service.KindStageReturned:         "returned to an earlier stage",
	service.KindRevisionRequested:     "needs revision",
	service.KindRevisionSubmitted:     "revision submitted",
	service.KindApproved:              "approved",
	service.KindRejected:              "rejected",
	service.KindCompleted:             "completed",
	service.KindCancelled:             "cancelled",
	service.KindDocumentUploaded:      "new document uploaded",
	service.KindDocumentStatusChanged: "document status changed",
}

var bodyTemplate = template.Must(template.New("event").Parse(`<p>Submission <strong>{{.Title}}</strong> {{.Headline}}.</p>
<table>
<tr><td>Status</td><td>{{.Status}}</td></tr>
{{- if .Document}}
<tr><td>Document</td><td>{{.Document}}</td></tr>
{{- end}}
<tr><td>Time</td><td>{{.When}}</td></tr>
</table>
{{- if .Comment}}
<p>Comment:</p>
<blockquote>{{.Comment}}</blockquote>
{{- end}}
<p><small>Reference {{.ID}}</small></p>
`))

// Render builds the subject line and HTML body for ev.
func Render(ev service.Event) (string, string, error) {
	headline, ok := headlines[ev.Kind]
	if !ok {
		headline = string(ev.Kind)
	}
	title := ev.Title
	if title == "" {
		title = ev.SubmissionID.String()
	}

	data := struct {
		ID, Title, Headline, Status, Document, Comment, When string
	}{
		ID:       ev.SubmissionID.String(),
		Title:    title,
		Headline: headline,
		Status:   string(ev.ToStatus),
		Comment:  ev.Comment,
		When:     ev.OccurredAt.UTC().Format("2006-01-02 15:04 MST"),
	}
	if ev.IsDocumentEvent() {
		data.Document = fmt.Sprintf("%s -> %s", ev.DocumentFromStatus, ev.DocumentToStatus)
		if ev.DocumentFromStatus == "" {
			data.Document = string(ev.DocumentToStatus)
		}
	}

	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", ev.Kind, err)
	}
	subject := fmt.Sprintf("[IP Center] %s: %s", title, headline)
	return subject, buf.String(), nil
}
