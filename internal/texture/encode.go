// Package texture renders noise texture nodes into images and PNG files.
package texture

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
)

// ParseCompression maps a compression name (default, speed, best, none) to a
// png.CompressionLevel. The empty string means default.
func ParseCompression(name string) (png.CompressionLevel, error) {
	switch name {
	case "", "default":
		return png.DefaultCompression, nil
	case "speed":
		return png.BestSpeed, nil
	case "best":
		return png.BestCompression, nil
	case "none":
		return png.NoCompression, nil
	default:
		return 0, fmt.Errorf("invalid png compression %q: must be default, speed, best or none", name)
	}
}

// Encode writes img as PNG with the named compression.
func Encode(w io.Writer, img image.Image, compression string) error {
	level, err := ParseCompression(compression)
	if err != nil {
		return err
	}
	enc := png.Encoder{CompressionLevel: level}
	return enc.Encode(w, img)
}

// EncodeBytes is Encode into a byte slice.
func EncodeBytes(img image.Image, compression string) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, compression); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WritePNG encodes img to path, creating parent directories.
func WritePNG(path string, img image.Image, compression string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create dir for %s: %w", path, err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create texture %s: %w", path, err)
	}
	if err := encodeAndClose(file, img, compression); err != nil {
		return fmt.Errorf("failed to write texture %s: %w", path, err)
	}
	return nil
}

// encodeAndClose encodes img into wc and always closes it. The close error
// is returned when encoding succeeded.
func encodeAndClose(wc io.WriteCloser, img image.Image, compression string) error {
	if err := Encode(wc, img, compression); err != nil {
		_ = wc.Close()
		return err
	}
	return wc.Close()
}
