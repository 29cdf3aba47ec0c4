// Package catalogue reads the seed catalogue: a CSV file with one row per existing
// render and the header prompt,file,upscale,mu,sigma,width,height. The optional
// columns seed and orig_file are honoured when present.
package catalogue

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/jo-hoe/promptrank/internal/entry"
	"github.com/jo-hoe/promptrank/internal/rating"
)

var requiredColumns = []string{"prompt", "file", "upscale", "mu", "sigma", "width", "height"}

// ReadFile opens path and reads it with Read.
func ReadFile(path string, prior rating.Belief) ([]entry.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalogue: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Read(f, prior)
}

// Read parses catalogue rows into entries without ids. Files are reduced to their base
// name, which is how the image directory serves them. Unparseable scores fall back to
// prior.
func Read(r io.Reader, prior rating.Belief) ([]entry.Entry, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("catalogue is empty")
		}
		return nil, fmt.Errorf("failed to read catalogue header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("catalogue is missing column %q", name)
		}
	}

	var entries []entry.Entry
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read catalogue line %d: %w", line, err)
		}
		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		e, err := parseRow(field, prior)
		if err != nil {
			return nil, fmt.Errorf("catalogue line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func parseRow(field func(string) string, prior rating.Belief) (entry.Entry, error) {
	e := entry.Entry{
		PromptText: field("prompt"),
		Filepath:   baseName(field("file")),
		Upscale:    entry.ParseUpscaleState(field("upscale")),
		Quality:    prior,
	}
	if e.PromptText == "" {
		return entry.Entry{}, fmt.Errorf("empty prompt")
	}

	mu, muOK := parseFloat(field("mu"))
	sigma, sigmaOK := parseFloat(field("sigma"))
	if muOK && sigmaOK && sigma > 0 {
		e.Quality = rating.Belief{Mu: mu, Sigma: sigma}
	}

	if e.HasRender() {
		e.Width = parseInt(field("width"))
		e.Height = parseInt(field("height"))
	}
	if s := field("seed"); s != "" {
		seed, err := strconv.ParseInt(s, 10, 64)
		if err != nil || seed < 0 || seed > entry.MaxSeed {
			return entry.Entry{}, fmt.Errorf("invalid seed %q", s)
		}
		e.SetSeed(seed)
	}

	if e.Upscale == entry.IsUpscale {
		e.OrigFilepath = baseName(field("orig_file"))
		if e.OrigFilepath == "" {
			slog.Warn("catalogue: upscale without original, importing as a plain render", "file", e.Filepath)
			e.Upscale = entry.UpscaleNone
		}
	}
	return e, nil
}

func baseName(p string) string {
	if p == "" {
		return ""
	}
	return path.Base(strings.ReplaceAll(p, `\`, "/"))
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseInt accepts "1344" and "1344.0"; anything else is treated as unknown.
func parseInt(s string) int {
	f, ok := parseFloat(s)
	if !ok || f <= 0 {
		return 0
	}
	return int(f)
}
