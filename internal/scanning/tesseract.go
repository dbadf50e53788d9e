package scanning

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// MethodTesseract identifies recognitions made by the tesseract binary
const MethodTesseract = "tesseract"

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		slog.Error("exec failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	} else {
		slog.Debug("exec ok",
			"cmd", name,
			"duration_ms", time.Since(start).Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// TesseractConfig configures the tesseract recognizer
type TesseractConfig struct {
	Binary      string // defaults to "tesseract"
	TessdataDir string
	PSM         int // page segmentation mode, 0 keeps the binary's default
}

// Tesseract implements the Recognizer interface by running the tesseract CLI
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
}

// NewTesseract creates a tesseract recognizer that executes the binary
func NewTesseract(cfg TesseractConfig) *Tesseract {
	return NewTesseractWithRunner(cfg, execRunner{})
}

// NewTesseractWithRunner creates a tesseract recognizer with a custom runner for testing
func NewTesseractWithRunner(cfg TesseractConfig, runner Runner) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	return &Tesseract{cfg: cfg, runner: runner}
}

// Recognize runs tesseract in TSV mode over the variant
func (t *Tesseract) Recognize(ctx context.Context, v Variant, hints []string) (*Recognition, error) {
	f, err := os.CreateTemp("", "receipt-*.png")
	if err != nil {
		return nil, fmt.Errorf("creating temp image: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(v.Data); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing temp image: %w", err)
	}

	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, t.args(f.Name(), hints)...)
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}

	text, conf := parseTSV(string(out))
	return &Recognition{
		Text:       text,
		Confidence: conf,
		Method:     MethodTesseract,
		Variant:    v.Kind,
	}, nil
}

func (t *Tesseract) args(path string, hints []string) []string {
	args := []string{path, "stdout", "-l", tesseractLanguages(hints)}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	return append(args, "tsv")
}

// Close is a no-op
func (t *Tesseract) Close() error {
	return nil
}

// tesseractLanguages joins hints the way -l expects them, e.g. "tha+eng"
func tesseractLanguages(hints []string) string {
	seen := make(map[string]bool)
	var langs []string
	for _, h := range hints {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		langs = append(langs, h)
	}
	if len(langs) == 0 {
		return "eng"
	}
	return strings.Join(langs, "+")
}

// parseTSV rebuilds the text line by line from tesseract TSV output and
// returns it with the mean word confidence (0..100).
//
// Columns: level page_num block_num par_num line_num word_num left top width height conf text
func parseTSV(tsv string) (string, float64) {
	var (
		lines   []string
		current []string
		lineKey string
		sum     float64
		n       int
	)
	flush := func() {
		if len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
			current = nil
		}
	}

	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue // header
		}
		cols := strings.Split(strings.TrimRight(ln, "\r"), "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue // only word rows carry text
		}
		word := strings.TrimSpace(cols[11])
		conf, err := strconv.ParseFloat(cols[10], 64)
		if word == "" || err != nil || conf < 0 {
			continue
		}
		key := cols[1] + "/" + cols[2] + "/" + cols[3] + "/" + cols[4]
		if key != lineKey {
			flush()
			lineKey = key
		}
		current = append(current, word)
		sum += conf
		n++
	}
	flush()

	if n == 0 {
		return "", 0
	}
	return strings.Join(lines, "\n"), sum / float64(n)
}
