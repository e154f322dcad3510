package email

import (
	"fmt"
	"net/smtp"
)

// Service handles email sending via SMTP
type Service struct {
	host     string
	port     string
	from     string
	fromName string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewService creates a new email service. Username may be empty for relays
// that accept unauthenticated mail.
func NewService(host, port, from, fromName, username, password string) *Service {
	s := &Service{
		host:     host,
		port:     port,
		from:     from,
		fromName: fromName,
		sendMail: smtp.SendMail,
	}
	if username != "" {
		s.auth = smtp.PlainAuth("", username, password, host)
	}
	return s
}

// SendPaymentConfirmation emails the purchaser after a successful capture
func (s *Service) SendPaymentConfirmation(c Confirmation) error {
	return s.send(c.Recipient, c.Subject(), BuildConfirmationBody(c))
}

func (s *Service) send(to, subject, body string) error {
	from := s.from
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", s.fromName, s.from)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return s.sendMail(addr, s.auth, s.from, []string{to}, []byte(msg))
}
