package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RecognizerConfig selects and configures a recognizer backend
type RecognizerConfig struct {
	Type string // gemini, ollama or tesseract

	GeminiKey   string
	GeminiModel string

	OllamaURL   string
	OllamaModel string

	Tesseract TesseractConfig
}

// CacheConfig selects the recognition cache backend
type CacheConfig struct {
	Type     string // none, bolt or redis
	BoltPath string
	Redis    RedisConfig
}

// NewRecognizer builds the configured recognizer
func NewRecognizer(ctx context.Context, cfg RecognizerConfig) (Recognizer, error) {
	switch cfg.Type {
	case "gemini":
		slog.Info("Initializing Gemini recognizer...", "model", cfg.GeminiModel)
		g, err := NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "ollama":
		slog.Info("Initializing Ollama recognizer...", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		o, err := NewOllama(cfg.OllamaURL, cfg.OllamaModel)
		if err != nil {
			return nil, err
		}
		return o, nil
	case "tesseract":
		slog.Info("Initializing Tesseract recognizer...", "binary", cfg.Tesseract.Binary)
		return NewTesseract(cfg.Tesseract), nil
	default:
		return nil, fmt.Errorf("invalid recognizer type %q: valid types are gemini, ollama or tesseract", cfg.Type)
	}
}

// NewCache builds the configured cache; it returns nil for "none"
func NewCache(ctx context.Context, cfg CacheConfig) (Cache, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "bolt":
		slog.Info("Initializing bolt recognition cache...", "path", cfg.BoltPath)
		c, err := NewBoltCache(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "redis":
		slog.Info("Initializing redis recognition cache...", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL.String())
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		c, err := NewRedisCache(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("invalid cache type %q: valid types are none, bolt or redis", cfg.Type)
	}
}

// WithCache decorates rec with cache when one is configured
func WithCache(rec Recognizer, cache Cache, namespace string) Recognizer {
	if cache == nil {
		return rec
	}
	return NewCachedRecognizer(rec, cache, namespace)
}
