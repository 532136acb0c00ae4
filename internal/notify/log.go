package notify

import (
	"context"

	"github.com/rs/zerolog"

	"ip-workflow-service/internal/service"
)

// LogNotifier is used when SMTP is not configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, ev service.Event) error {
	e := n.log.Info().
		Str("kind", string(ev.Kind)).
		Str("submission_id", ev.SubmissionID.String()).
		Str("status", string(ev.ToStatus))
	if ev.StageID != nil {
		e = e.Str("stage_id", ev.StageID.String())
	}
	if ev.DocumentID != nil {
		e = e.Str("document_id", ev.DocumentID.String()).Str("document_status", string(ev.DocumentToStatus))
	}
	e.Msg("workflow event")
	return nil
}
