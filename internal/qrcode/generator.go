package qrcode

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	goqrcode "github.com/skip2/go-qrcode"
)

const (
	defaultSize   = 200
	dataURLPrefix = "data:image/png;base64,"
)

// Generator produces the scannable token printed on a health card.
type Generator interface {
	Generate(ctx context.Context, waterbodyID string) (string, error)
}

// PNGGenerator encodes the public health card URL as a PNG data URL.
type PNGGenerator struct {
	baseURL string
	size    int
}

func NewPNGGenerator(publicBaseURL string) *PNGGenerator {
	return &PNGGenerator{
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		size:    defaultSize,
	}
}

// CardURL is where a scanned code lands.
func (g *PNGGenerator) CardURL(waterbodyID string) string {
	return fmt.Sprintf("%s/health-card/%s", g.baseURL, url.PathEscape(waterbodyID))
}

func (g *PNGGenerator) Generate(_ context.Context, waterbodyID string) (string, error) {
	if strings.TrimSpace(waterbodyID) == "" {
		return "", fmt.Errorf("waterbody id is required for qr code")
	}
	png, err := goqrcode.Encode(g.CardURL(waterbodyID), goqrcode.Medium, g.size)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}
