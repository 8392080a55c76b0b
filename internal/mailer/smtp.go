package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/mail.v2"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
	// StartTLSPolicy: "opportunistic" (default), "mandatory", or "none".
	StartTLSPolicy string
}

// SMTP is a Transport that delivers a batch over one SMTP session.
type SMTP struct {
	cfg    SMTPConfig
	dialer *mail.Dialer
	domain string
}

// NewSMTP builds an SMTP transport. No connection is opened until SendBatch.
func NewSMTP(cfg SMTPConfig) *SMTP {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.Timeout > 0 {
		d.Timeout = cfg.Timeout
	}
	switch strings.ToLower(cfg.StartTLSPolicy) {
	case "mandatory":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		d.StartTLSPolicy = mail.OpportunisticStartTLS
	}
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}

	dom := "localhost"
	if at := strings.LastIndex(cfg.From, "@"); at >= 0 {
		dom = strings.Trim(cfg.From[at+1:], "> ")
	}
	return &SMTP{cfg: cfg, dialer: d, domain: dom}
}

// SendBatch dials once and sends every message on the same session. A dial
// failure fails the whole batch; a per-message failure is reported in that
// message's Outcome. If ctx ends mid-batch the remaining messages are
// reported failed without being sent.
func (s *SMTP) SendBatch(ctx context.Context, msgs []Message) ([]Outcome, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sc, err := s.dialer.Dial()
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}
	defer sc.Close()

	out := make([]Outcome, len(msgs))
	m := mail.NewMessage()
	for i, msg := range msgs {
		out[i].UserID = msg.UserID
		if err := ctx.Err(); err != nil {
			out[i].Status = domain.DeliveryFailed
			out[i].Error = err.Error()
			continue
		}

		id := s.messageID()
		m.Reset()
		s.build(m, msg, id)
		if err := mail.Send(sc, m); err != nil {
			out[i].Status = domain.DeliveryFailed
			out[i].Error = err.Error()
			continue
		}
		out[i].Status = domain.DeliverySent
		out[i].ExternalID = id
	}
	return out, nil
}

func (s *SMTP) messageID() string {
	return uuid.NewString() + "@" + s.domain
}

// build fills m from msg. The Message-ID doubles as the ledger's external id.
func (s *SMTP) build(m *mail.Message, msg Message, id string) {
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", "<"+id+">")
	m.SetDateHeader("Date", time.Now())
	for k, v := range msg.Headers {
		m.SetHeader(k, v)
	}
	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}
}
