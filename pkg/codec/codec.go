// Package codec encodes acquired pages for transport.
package codec

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Format is an output image format.
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
)

// DefaultJPEGQuality matches the quality PIL uses when none is given.
const DefaultJPEGQuality = 75

// ParseFormat accepts jpeg, jpg and png in any case. Empty selects JPEG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jpeg", "jpg":
		return JPEG, nil
	case "png":
		return PNG, nil
	}
	return "", errors.Errorf("unsupported image format %q", s)
}

// Ext returns the file extension for f, including the dot.
func (f Format) Ext() string {
	if f == PNG {
		return ".png"
	}
	return ".jpg"
}

// Encode writes img to w in format f.
func Encode(w io.Writer, img image.Image, f Format) error {
	if img == nil {
		return errors.New("encode: nil image")
	}
	switch f {
	case PNG:
		return errors.Wrap(png.Encode(w, img), "encode png")
	case JPEG, "":
		return errors.Wrap(jpeg.Encode(w, img, &jpeg.Options{Quality: DefaultJPEGQuality}), "encode jpeg")
	}
	return errors.Errorf("unsupported image format %q", f)
}

// Bytes returns img encoded in format f.
func Bytes(img image.Image, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Base64 returns img encoded in format f as standard base64 text.
func Base64(img image.Image, f Format) (string, error) {
	raw, err := Bytes(img, f)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
