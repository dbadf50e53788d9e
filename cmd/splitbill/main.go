package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/splitbill/internal/extract"
	"github.com/zombor/splitbill/internal/receipt"
	"github.com/zombor/splitbill/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	fs := ff.NewFlagSet("splitbill")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		recognizerType = fs.StringLong("recognizer", "gemini", "Recognizer type: 'gemini', 'ollama' or 'tesseract'")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama vision model name (e.g., qwen2.5vl, llava, minicpm-v)")
		tesseractBin   = fs.StringLong("tesseract-bin", "tesseract", "Path to the tesseract binary")
		tessdataDir    = fs.StringLong("tessdata", "", "Tesseract tessdata directory (optional)")
		tesseractPSM   = fs.IntLong("tesseract-psm", 0, "Tesseract page segmentation mode (0 keeps the default)")
		languages      = fs.StringLong("languages", "eng", "Default comma-separated language hints (e.g., eng,tha)")
		minConfidence  = fs.Float64Long("min-confidence", 30, "Confidence (0-100) below which the unenhanced image is tried too")
		rejectLow      = fs.BoolLong("reject-low-confidence", "Fail scans whose best confidence is below --min-confidence")
		timeout        = fs.DurationLong("timeout", 30*time.Second, "Maximum time for a single scan")
		maxItemPrice   = fs.Float64Long("max-item-price", 1000, "Item prices at or above this are treated as misreads")
		missLimit      = fs.IntLong("miss-limit", 5, "Consecutive non-item lines that end the item section")
		seekWindow     = fs.IntLong("seek-window", 5, "Lines that may be skipped before the item section starts")
		localesFile    = fs.StringLong("locales", "", "YAML file with extra or overriding locale vocabularies (optional)")
		cacheType      = fs.StringLong("cache", "none", "Recognition cache: 'none', 'bolt' or 'redis'")
		cachePath      = fs.StringLong("cache-path", "splitbill-cache.db", "Bolt cache file path")
		redisAddr      = fs.StringLong("redis-addr", "localhost:6379", "Redis address")
		redisPassword  = fs.StringLong("redis-password", "", "Redis password (optional)")
		redisDB        = fs.IntLong("redis-db", 0, "Redis database number")
		redisTTL       = fs.DurationLong("redis-ttl", 24*time.Hour, "Redis cache entry lifetime")
		s3Endpoint     = fs.StringLong("s3-endpoint", "", "S3-compatible endpoint for s3:// image references (optional)")
		s3Region       = fs.StringLong("s3-region", "", "S3 region; setting it or --s3-endpoint enables s3:// references")
		s3AccessKey    = fs.StringLong("s3-access-key", "", "S3 access key (optional, default credential chain otherwise)")
		s3SecretKey    = fs.StringLong("s3-secret-key", "", "S3 secret key (optional)")
		localDir       = fs.StringLong("local-dir", "", "Directory served for file:// image references (optional)")
		allowedHosts   = fs.StringLong("allowed-hosts", "", "Comma-separated hosts for http(s) image URLs, '*.domain' or '*' for any public host; URLs are refused when empty")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SPLITBILL"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize extractor
	var extra []extract.Locale
	if *localesFile != "" {
		var err error
		extra, err = extract.LoadLocalesFile(*localesFile)
		if err != nil {
			slog.Error("Failed to load locales", "path", *localesFile, "error", err)
			os.Exit(1)
		}
		slog.Info("Loaded locales", "path", *localesFile, "count", len(extra))
	}
	extractor, err := extract.New(extract.Config{
		MaxItemPrice: *maxItemPrice,
		MissLimit:    *missLimit,
		SeekWindow:   *seekWindow,
	}, extra...)
	if err != nil {
		slog.Error("Failed to initialize extractor", "error", err)
		os.Exit(1)
	}

	// Initialize recognizer based on type
	apiKey := *geminiKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if *recognizerType == "gemini" && apiKey == "" {
		slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
		os.Exit(1)
	}
	recognizer, err := scanning.NewRecognizer(ctx, scanning.RecognizerConfig{
		Type:        *recognizerType,
		GeminiKey:   apiKey,
		GeminiModel: *geminiModel,
		OllamaURL:   *ollamaURL,
		OllamaModel: *ollamaModel,
		Tesseract: scanning.TesseractConfig{
			Binary:      *tesseractBin,
			TessdataDir: *tessdataDir,
			PSM:         *tesseractPSM,
		},
	})
	if err != nil {
		slog.Error("Failed to initialize recognizer", "type", *recognizerType, "error", err)
		os.Exit(1)
	}

	// Initialize recognition cache
	cache, err := scanning.NewCache(ctx, scanning.CacheConfig{
		Type:     *cacheType,
		BoltPath: *cachePath,
		Redis: scanning.RedisConfig{
			Addr:     *redisAddr,
			Password: *redisPassword,
			DB:       *redisDB,
			TTL:      *redisTTL,
		},
	})
	if err != nil {
		recognizer.Close()
		slog.Error("Failed to initialize cache", "type", *cacheType, "error", err)
		os.Exit(1)
	}
	recognizer = scanning.WithCache(recognizer, cache, cacheNamespace(*recognizerType, *geminiModel, *ollamaModel))
	defer recognizer.Close()

	pipeline := scanning.NewPipeline(recognizer, extractor, scanning.PipelineConfig{
		MinConfidence:       *minConfidence,
		RejectLowConfidence: *rejectLow,
		Timeout:             *timeout,
	}).WithTextLayer(scanning.PDFText{})

	// Initialize image sources
	source := scanning.NewMultiSource()
	if hosts := splitList(*allowedHosts); len(hosts) > 0 {
		source.Register(scanning.NewHTTPSource(scanning.HTTPSourceConfig{AllowedHosts: hosts}), "http", "https")
		slog.Info("Image URLs enabled", "hosts", hosts)
	}
	if *s3Endpoint != "" || *s3Region != "" {
		s3Source, err := scanning.NewS3Source(ctx, scanning.S3Config{
			Region:    *s3Region,
			Endpoint:  *s3Endpoint,
			AccessKey: *s3AccessKey,
			SecretKey: *s3SecretKey,
		})
		if err != nil {
			slog.Error("Failed to initialize S3 source", "error", err)
			os.Exit(1)
		}
		source.Register(s3Source, "s3")
		slog.Info("S3 image references enabled", "endpoint", *s3Endpoint, "region", *s3Region)
	}
	if *localDir != "" {
		local, err := scanning.NewLocalSource(*localDir)
		if err != nil {
			slog.Error("Failed to initialize local source", "error", err)
			os.Exit(1)
		}
		source.Register(local, "file")
	}

	// Initialize service and server
	receiptService := receipt.NewService(pipeline, extractor, source, splitList(*languages))
	server := receipt.NewServer(receiptService)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started",
		"address", fmt.Sprintf("http://localhost%s", addr),
		"version", version,
		"recognizer", *recognizerType,
		"cache", *cacheType,
	)

	<-ctx.Done()

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
}

// cacheNamespace keeps cached recognitions of different models apart
func cacheNamespace(recognizerType, geminiModel, ollamaModel string) string {
	switch recognizerType {
	case "gemini":
		return recognizerType + ":" + geminiModel
	case "ollama":
		return recognizerType + ":" + ollamaModel
	default:
		return recognizerType
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
