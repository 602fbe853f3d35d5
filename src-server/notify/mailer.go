package notify

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer delivers iTIP cancellation messages over SMTP. Receiving clients
// match the CANCEL to the original invitation by UID, so the payload comes
// straight from the serializer's cancellation transform.
type Mailer struct {
	host     string
	port     string
	username string
	password string
	from     string
}

func NewMailer(host string, port string, username string, password string, from string) *Mailer {
	return &Mailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

// SendCancellation mails the METHOD:CANCEL payload to every recipient as a
// text/calendar part.
func (m *Mailer) SendCancellation(to []string, summary string, icsPayload string) error {
	if len(to) == 0 {
		return nil
	}
	if m.host == "" || m.from == "" {
		return fmt.Errorf("(*Mailer).SendCancellation: mailer not configured")
	}

	var sb strings.Builder
	sb.WriteString("From: " + m.from + "\r\n")
	sb.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	sb.WriteString("Subject: Cancelled: " + sanitizeHeader(summary) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString(`Content-Type: text/calendar; charset="utf-8"; method=CANCEL` + "\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(icsPayload)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	addr := m.host + ":" + m.port
	if err := smtp.SendMail(addr, auth, m.from, to, []byte(sb.String())); err != nil {
		return fmt.Errorf("(*Mailer).SendCancellation: %w", err)
	}
	return nil
}

// sanitizeHeader keeps a summary from smuggling extra headers into the mail.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
