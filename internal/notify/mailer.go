package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"

	"next_mart/internal/config"
	"next_mart/internal/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Mail struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

type smtpMailer struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
	tracer trace.Tracer
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg config.SMTPConfig, l *zap.Logger) Mailer {
	return &smtpMailer{
		cfg:    cfg,
		logger: l,
		tracer: otel.Tracer("next_mart/notify/email"),
		send:   smtp.SendMail,
	}
}

func (s *smtpMailer) Send(ctx context.Context, m Mail) error {
	ctx, span := s.tracer.Start(ctx, "smtp.Send")
	defer span.End()
	span.SetAttributes(attribute.String("to.email", m.To), attribute.Int("attachments", len(m.Attachments)))

	msg, err := buildMessage(s.cfg.From, m)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}

	logger.Info(ctx, s.logger, "sending email", zap.String("to", m.To), zap.String("subject", m.Subject))
	if err := s.send(addr, auth, s.cfg.From, []string{m.To}, msg); err != nil {
		span.RecordError(err)
		logger.Error(ctx, s.logger, "send email failed", zap.String("to", m.To), zap.Error(err))
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

// buildMessage 组装 multipart/mixed 邮件：HTML 正文 + base64 附件。
func buildMessage(from string, m Mail) ([]byte, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	htmlPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=\"UTF-8\""},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write([]byte(m.HTML)); err != nil {
		return nil, err
	}

	for _, a := range m.Attachments {
		part, err := w.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {a.ContentType},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename})},
		})
		if err != nil {
			return nil, err
		}
		enc := base64.StdEncoding.EncodeToString(a.Data)
		for len(enc) > 76 {
			if _, err := part.Write([]byte(enc[:76] + "\r\n")); err != nil {
				return nil, err
			}
			enc = enc[76:]
		}
		if _, err := part.Write([]byte(enc + "\r\n")); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var head bytes.Buffer
	fmt.Fprintf(&head, "From: %s\r\n", from)
	fmt.Fprintf(&head, "To: %s\r\n", m.To)
	fmt.Fprintf(&head, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	head.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&head, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", w.Boundary())

	return append(head.Bytes(), body.Bytes()...), nil
}
