package utils

import (
	"os"            // Directory creation
	"path/filepath" // Path handling

	qrcode "github.com/skip2/go-qrcode" // QR code image generation
)

// GenerateQRCode renders the roll number as a QR PNG under dir and
// returns the path relative to the static root, as stored on the student
// row. Scanners decode the image back to the plain roll number string.
func GenerateQRCode(dir, rollNumber string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	filename := rollNumber + ".png"
	if err := qrcode.WriteFile(rollNumber, qrcode.Medium, 256, filepath.Join(dir, filename)); err != nil {
		return "", err
	}
	return filepath.ToSlash(filepath.Join(filepath.Base(dir), filename)), nil
}
