package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/parkspot/pkg/config"
)

// BookingConfirmation is what the renter receives after a successful booking.
type BookingConfirmation struct {
	ToEmail    string
	ToName     string
	BookingID  string
	Address    string
	StartTime  time.Time
	EndTime    time.Time
	TotalPrice float64
}

type Mailer interface {
	SendBookingConfirmation(ctx context.Context, msg BookingConfirmation) error
}

// New returns the dev mailer unless MailerSend is configured and dev mode is off.
func New(cfg config.EmailConfig) Mailer {
	if cfg.DevMode || cfg.MailerSendKey == "" {
		return NewDevMailer()
	}
	return NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.FromEmail)
}

func subjectFor(msg BookingConfirmation) string {
	return "Your parking is booked: " + msg.Address
}

func textFor(msg BookingConfirmation) string {
	return fmt.Sprintf("Hi %s,\n\nYour booking %s at %s is confirmed.\nFrom: %s\nTo: %s\nTotal: $%.2f\n\nShow the QR code from your bookings page at check-in.",
		msg.ToName, msg.BookingID, msg.Address,
		msg.StartTime.Format(time.RFC1123), msg.EndTime.Format(time.RFC1123), msg.TotalPrice)
}
