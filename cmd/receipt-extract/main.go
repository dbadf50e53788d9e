package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/splitbill/internal/extract"
	"github.com/zombor/splitbill/internal/receipt"
	"github.com/zombor/splitbill/internal/scanning"
)

func main() {
	fs := ff.NewFlagSet("receipt-extract")
	var (
		languages      = fs.StringLong("languages", "eng", "Comma-separated language hints (e.g., eng,tha)")
		format         = fs.StringLong("format", "json", "Output format: 'json' or 'xlsx'")
		output         = fs.StringLong("output", "", "Output file (default stdout)")
		recognizerType = fs.StringLong("recognizer", "tesseract", "Recognizer for images: 'gemini', 'ollama' or 'tesseract'")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama vision model name")
		tesseractBin   = fs.StringLong("tesseract-bin", "tesseract", "Path to the tesseract binary")
		localesFile    = fs.StringLong("locales", "", "YAML file with extra locale vocabularies (optional)")
		timeout        = fs.DurationLong("timeout", 60*time.Second, "Maximum time for scanning an image")
		verbose        = fs.BoolLong("verbose", "Log progress to stderr")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SPLITBILL"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	input, name, err := readInput(fs.GetArgs())
	if err != nil {
		fail("reading input", err)
	}

	var extra []extract.Locale
	if *localesFile != "" {
		if extra, err = extract.LoadLocalesFile(*localesFile); err != nil {
			fail("loading locales", err)
		}
	}
	extractor, err := extract.New(extract.DefaultConfig(), extra...)
	if err != nil {
		fail("initializing extractor", err)
	}

	hints := strings.Split(*languages, ",")
	var data *extract.ReceiptData

	if contentType, ok := imageType(name, input); ok {
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		recognizer, err := scanning.NewRecognizer(ctx, scanning.RecognizerConfig{
			Type:        *recognizerType,
			GeminiKey:   apiKey,
			GeminiModel: *geminiModel,
			OllamaURL:   *ollamaURL,
			OllamaModel: *ollamaModel,
			Tesseract:   scanning.TesseractConfig{Binary: *tesseractBin},
		})
		if err != nil {
			fail("initializing recognizer", err)
		}
		defer recognizer.Close()

		cfg := scanning.DefaultPipelineConfig()
		cfg.Timeout = *timeout
		pipeline := scanning.NewPipeline(recognizer, extractor, cfg).WithTextLayer(scanning.PDFText{})

		result, err := pipeline.Process(ctx, input, contentType, hints)
		if err != nil {
			fail("scanning receipt", err)
		}
		slog.Info("Recognized receipt",
			"method", result.Recognition.Method,
			"variant", result.Recognition.Variant,
			"confidence", result.Recognition.Confidence,
		)
		data = result.Receipt
	} else {
		data, err = extractor.Extract(string(input), hints)
		if err != nil {
			fail("extracting receipt", err)
		}
	}

	if err := write(*output, *format, data); err != nil {
		fail("writing output", err)
	}
}

// readInput reads the named file, or stdin when no file or "-" is given
func readInput(args []string) ([]byte, string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(io.LimitReader(os.Stdin, scanning.MaxImageSize))
		return data, "", err
	}
	data, err := os.ReadFile(args[0])
	return data, args[0], err
}

// imageType reports whether input is an image or PDF rather than text
func imageType(name string, input []byte) (string, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".heic":
		return "image/heic", true
	case ".heif":
		return "image/heif", true
	}
	contentType := http.DetectContentType(input)
	if strings.HasPrefix(contentType, "image/") || contentType == "application/pdf" {
		return contentType, true
	}
	return "", false
}

func write(path, format string, data *extract.ReceiptData) error {
	var out []byte
	switch format {
	case "json":
		b, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return err
		}
		out = append(b, '\n')
	case "xlsx":
		if path == "" {
			return fmt.Errorf("--output is required for xlsx")
		}
		b, err := receipt.ExportXLSX(data)
		if err != nil {
			return err
		}
		out = b
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	if path == "" {
		_, err := os.Stdout.Write(out)
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func fail(action string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", action, err)
	os.Exit(1)
}
