package mailer

import (
	"context"
	"sync"

	"github.com/diagnosis/parkspot/pkg/logger"
)

// DevMailer logs messages instead of sending them and keeps them for inspection.
type DevMailer struct {
	mu   sync.Mutex
	sent []BookingConfirmation
}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendBookingConfirmation(ctx context.Context, msg BookingConfirmation) error {
	logger.InfoContext(ctx, "[DEV MAIL] booking confirmation",
		"to", msg.ToEmail,
		"subject", subjectFor(msg),
		"booking_id", msg.BookingID,
		"total_price", msg.TotalPrice,
	)

	d.mu.Lock()
	d.sent = append(d.sent, msg)
	d.mu.Unlock()
	return nil
}

func (d *DevMailer) Sent() []BookingConfirmation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]BookingConfirmation(nil), d.sent...)
}
