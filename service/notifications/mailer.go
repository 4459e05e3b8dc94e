package notifications

import (
	"fmt"

	"github.com/careslot/careslot-server/config"
	"gopkg.in/gomail.v2"
)

// Mailer sends booking emails over SMTP. A zero-config mailer (no host) is
// disabled and drops messages silently so local setups work without SMTP.
type Mailer struct {
	host string
	port int
	user string
	pass string
}

func NewMailer(cfg config.Config) *Mailer {
	return &Mailer{
		host: cfg.SMTPHost,
		port: cfg.SMTPPort,
		user: cfg.SMTPUser,
		pass: cfg.SMTPPass,
	}
}

func (m *Mailer) enabled() bool {
	return m.host != ""
}

// SendBookingStatusEmail notifies a user that their booking changed status.
func (m *Mailer) SendBookingStatusEmail(email, reference, status string) error {
	if !m.enabled() {
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.user)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", fmt.Sprintf("Your booking is %s", status))
	msg.SetBody("text/plain", fmt.Sprintf(
		"Your booking %s is now %s. If you did not expect this change, please contact your provider.",
		reference, status))

	d := gomail.NewDialer(m.host, m.port, m.user, m.pass)
	return d.DialAndSend(msg)
}
