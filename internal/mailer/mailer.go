// Package mailer sends referral code emails over SMTP. It is only invoked
// from the queue consumer, never from a request handler, so a slow or down
// mail server cannot block an inbound request.
package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// Mailer wraps an SMTP dialer and the sender address.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

// New builds a Mailer from SMTP settings. When host or user is empty the
// Mailer is still returned but Send will fail; callers decide whether that
// is fatal.
func New(host string, port int, user, pass string) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(host, port, user, pass),
		from:   user,
	}
}

// Configured reports whether the mailer has enough settings to dial SMTP.
func (m *Mailer) Configured() bool {
	return m.dialer.Host != "" && m.from != ""
}

// SendReferralCode renders and sends the referral code message. The body
// greets the recipient, shows the code and links to the registration
// endpoint so the recipient can finish signing up.
func (m *Mailer) SendReferralCode(to, username string, code uint64, link, linkLabel string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Your referal code")
	msg.SetBody("text/html", fmt.Sprintf(
		"<div><h1>Hello, %s! Here is your referal code for registration:</h1>"+
			"<h2>%d</h2>"+
			"<h3><a href=%q>%s</a></h3></div>",
		username, code, link, linkLabel))
	return m.dialer.DialAndSend(msg)
}
