package mailer

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/mailersend/mailersend-go"
)

type MailerSendClient struct {
	client *mailersend.Mailersend
	from   mailersend.From
}

func NewMailerSend(apiKey, fromName, fromEmail string) *MailerSendClient {
	return &MailerSendClient{
		client: mailersend.NewMailersend(apiKey),
		from:   mailersend.From{Name: fromName, Email: fromEmail},
	}
}

func (m *MailerSendClient) SendBookingConfirmation(ctx context.Context, msg BookingConfirmation) error {
	body := fmt.Sprintf(`
		<h2>Your parking is booked</h2>
		<p>Hi %s,</p>
		<p>Booking <strong>%s</strong> at <strong>%s</strong> is confirmed.</p>
		<p>%s &ndash; %s</p>
		<p>Total: <strong>$%.2f</strong></p>
		<p>Show the QR code from your bookings page at check-in.</p>
	`, html.EscapeString(msg.ToName), msg.BookingID, html.EscapeString(msg.Address),
		msg.StartTime.Format(time.RFC1123), msg.EndTime.Format(time.RFC1123), msg.TotalPrice)

	return m.send(ctx, msg.ToEmail, msg.ToName, subjectFor(msg), textFor(msg), body)
}

func (m *MailerSendClient) send(ctx context.Context, toEmail, toName, subject, text, htmlBody string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	message := m.client.Email.NewMessage()
	message.SetFrom(m.from)
	message.SetRecipients([]mailersend.Recipient{{Name: toName, Email: toEmail}})
	message.SetSubject(subject)
	message.SetText(text)
	message.SetHTML(htmlBody)

	if _, err := m.client.Email.Send(ctx, message); err != nil {
		return fmt.Errorf("mailersend: %w", err)
	}
	return nil
}
