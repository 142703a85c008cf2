package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/wneessen/go-mail"
)

// Event details baked into the confirmation mail.
const (
	eventDate  = "August 9, 2025"
	eventTime  = "5:00 AM (5K) / 5:30 AM (10K)"
	eventVenue = "Island Grounds, Chennai"
)

// Mailer sends confirmation emails over SMTP.
type Mailer struct {
	host string
	port int
	user string
	pass string
	from string
}

func NewMailer(host string, port int, user, pass, from string) *Mailer {
	return &Mailer{host: host, port: port, user: user, pass: pass, from: from}
}

func (m *Mailer) SendConfirmation(ctx context.Context, c Confirmation) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(c.Participant.Email); err != nil {
		return fmt.Errorf("mail to: %w", err)
	}
	msg.Subject(fmt.Sprintf("Registration Confirmed - Salute Marathon 2025 | Bib #%d", c.BibNumber))

	body, err := renderConfirmation(c)
	if err != nil {
		return err
	}
	msg.SetBodyString(mail.TypeTextHTML, body)

	client, err := mail.NewClient(m.host,
		mail.WithPort(m.port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.user),
		mail.WithPassword(m.pass),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	return nil
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; max-width: 600px; margin: 0 auto;">
  <h1 style="color:#8B5CF6">Salute Marathon 2025</h1>
  <p>Hi {{.Name}},</p>
  <p>Your registration is confirmed. See you at the start line!</p>
  <h2 style="text-align:center;color:#8B5CF6">Bib #{{.Bib}}</h2>
  <table cellpadding="6">
    <tr><td><b>Registration ID</b></td><td>{{.RegistrationID}}</td></tr>
    <tr><td><b>Race</b></td><td>{{.Category}}</td></tr>
    <tr><td><b>Amount paid</b></td><td>&#8377;{{.Amount}}</td></tr>
    <tr><td><b>Date</b></td><td>{{.Date}}</td></tr>
    <tr><td><b>Start</b></td><td>{{.Time}}</td></tr>
    <tr><td><b>Venue</b></td><td>{{.Venue}}</td></tr>
  </table>
  <p>Bring a photo ID and this email to collect your race kit.</p>
</body>
</html>`))

func renderConfirmation(c Confirmation) (string, error) {
	var buf bytes.Buffer
	err := confirmationTmpl.Execute(&buf, map[string]any{
		"Name":           c.Participant.FullName(),
		"Bib":            c.BibNumber,
		"RegistrationID": c.Registration.RegistrationID,
		"Category":       c.Registration.RaceCategory,
		"Amount":         c.Registration.AmountRupees,
		"Date":           eventDate,
		"Time":           eventTime,
		"Venue":          eventVenue,
	})
	if err != nil {
		return "", fmt.Errorf("render confirmation: %w", err)
	}
	return buf.String(), nil
}
