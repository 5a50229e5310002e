package auth

import (
	"context"
	"log"
)

// Sender delivers a one-time code to a phone out of band
type Sender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// LogSender stands in for an SMS gateway. In dev mode the code itself is logged so it can be typed in.
type LogSender struct {
	DevMode bool
}

// SendOTP implements Sender
func (s LogSender) SendOTP(_ context.Context, phone, code string) error {
	if s.DevMode {
		log.Printf("[otp] dev code for %s: %s", MaskPhone(phone), code)
		return nil
	}
	log.Printf("[otp] code dispatched to %s", MaskPhone(phone))
	return nil
}
