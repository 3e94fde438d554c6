package notify

import (
	"github.com/cockroachdb/errors"
	qrcode "github.com/skip2/go-qrcode"
)

// DefaultQRSize is the PNG edge length used when none is configured.
const DefaultQRSize = 256

// Renderer turns payload text into an image.
type Renderer interface {
	Render(payload string) ([]byte, error)
}

// QRRenderer renders payloads as PNG QR codes with medium error recovery.
type QRRenderer struct {
	size int
}

// NewQRRenderer creates a QRRenderer producing size x size images.
func NewQRRenderer(size int) *QRRenderer {
	if size <= 0 {
		size = DefaultQRSize
	}
	return &QRRenderer{size: size}
}

// Render encodes payload into a PNG.
func (r *QRRenderer) Render(payload string) ([]byte, error) {
	if payload == "" {
		return nil, errors.New("empty payload")
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, r.size)
	if err != nil {
		return nil, errors.Wrap(err, "encode qr code")
	}
	return png, nil
}
