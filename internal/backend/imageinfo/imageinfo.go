// Package imageinfo reads the pixel size of rendered files without decoding them.
package imageinfo

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/srwiley/oksvg"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnknownSize is returned for SVGs that declare neither a size nor a viewBox.
var ErrUnknownSize = errors.New("image size unknown")

// Info describes a probed image.
type Info struct {
	Width  int
	Height int
	Format string
}

// ProbeFile reads the header of the image at path.
func ProbeFile(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to read image: %w", err)
	}
	return Probe(data)
}

// Probe returns the size of an encoded png, jpeg, gif, bmp, tiff, webp or svg image.
func Probe(data []byte) (Info, error) {
	if isSVGData(data) {
		return probeSVG(data)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("failed to decode image header: %w", err)
	}
	slog.Debug("imageinfo: probed raster image", "format", format, "width", cfg.Width, "height", cfg.Height)
	return Info{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// probeSVG prefers explicit width and height attributes and falls back to the viewBox.
func probeSVG(data []byte) (Info, error) {
	if w, h, ok := parseSvgExplicitSize(data); ok {
		return Info{Width: w, Height: h, Format: "svg"}, nil
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.IgnoreErrorMode)
	if err != nil {
		return Info{}, fmt.Errorf("failed to parse SVG: %w", err)
	}
	w, h := int(math.Round(icon.ViewBox.W)), int(math.Round(icon.ViewBox.H))
	if w <= 0 || h <= 0 {
		return Info{}, fmt.Errorf("%w: svg has no size or viewBox", ErrUnknownSize)
	}
	return Info{Width: w, Height: h, Format: "svg"}, nil
}

// parseSvgExplicitSize reads width and height from the root <svg> tag. Percentages
// are relative sizes and are ignored.
func parseSvgExplicitSize(data []byte) (int, int, bool) {
	head := data
	if len(head) > 8192 {
		head = head[:8192]
	}
	s := strings.ToLower(string(head))
	i := strings.Index(s, "<svg")
	if i < 0 {
		return 0, 0, false
	}
	tag := s[i:]
	if j := strings.IndexByte(tag, '>'); j >= 0 {
		tag = tag[:j]
	}

	w, wOk := numericAttr(tag, "width")
	h, hOk := numericAttr(tag, "height")
	if wOk && hOk {
		return w, h, true
	}
	return 0, 0, false
}

// numericAttr returns the integer part of a quoted attribute such as width="123px".
func numericAttr(tag, attr string) (int, bool) {
	for _, quote := range []string{`"`, `'`} {
		key := " " + attr + "=" + quote
		pos := strings.Index(tag, key)
		if pos < 0 {
			continue
		}
		val := tag[pos+len(key):]
		if end := strings.Index(val, quote); end >= 0 {
			val = val[:end]
		}
		val = strings.TrimSpace(val)
		if strings.HasSuffix(val, "%") {
			return 0, false
		}
		digits := strings.TrimRightFunc(val, func(r rune) bool { return (r < '0' || r > '9') && r != '.' })
		f, err := strconv.ParseFloat(digits, 64)
		if err != nil || f <= 0 {
			return 0, false
		}
		return int(math.Round(f)), true
	}
	return 0, false
}

// isSVGData looks for an svg root tag in the first 4KB.
func isSVGData(data []byte) bool {
	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}
	return bytes.Contains(bytes.ToLower(head), []byte("<svg"))
}
