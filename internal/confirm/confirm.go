// Package confirm renders booking confirmation payloads as QR codes.
package confirm

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/diagnosis/parkspot/internal/domain"
	qrcode "github.com/skip2/go-qrcode"
)

const imageSize = 256

// Payload serializes the confirmation in the form the check-in scanner reads.
func Payload(p domain.ConfirmationPayload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode confirmation: %w", err)
	}
	return string(b), nil
}

// PNG renders content as a QR code image.
func PNG(content string) ([]byte, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, imageSize)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}

// DataURL renders content as a base64 PNG data URL suitable for an <img> src.
func DataURL(content string) (string, error) {
	png, err := PNG(content)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// Decode parses a stored confirmation back into its payload.
func Decode(content string) (domain.ConfirmationPayload, error) {
	var p domain.ConfirmationPayload
	if err := json.Unmarshal([]byte(content), &p); err != nil {
		return p, fmt.Errorf("decode confirmation: %w", err)
	}
	return p, nil
}
