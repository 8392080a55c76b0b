package mailer

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// Log is a Transport that only logs messages and reports them sent.
// It backs MAIL_TRANSPORT=log for local runs.
type Log struct{}

// SendBatch logs each message at debug level and reports success.
func (Log) SendBatch(ctx context.Context, msgs []Message) ([]Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Outcome, len(msgs))
	for i, m := range msgs {
		id := uuid.NewString()
		log.Debug().
			Str("to", m.To).
			Str("subject", m.Subject).
			Str("message_id", id).
			Msg("mail (log transport)")
		out[i] = Outcome{UserID: m.UserID, Status: domain.DeliverySent, ExternalID: id}
	}
	return out, nil
}
