package scanning

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
)

// mockRecognizer is a mock implementation of Recognizer keyed by variant kind
type mockRecognizer struct {
	results  map[string]*Recognition
	errs     map[string]error
	calls    []string
	closeErr error
}

func newMockRecognizer() *mockRecognizer {
	return &mockRecognizer{
		results: make(map[string]*Recognition),
		errs:    make(map[string]error),
	}
}

func (m *mockRecognizer) Recognize(_ context.Context, v Variant, _ []string) (*Recognition, error) {
	m.calls = append(m.calls, v.Kind)
	if err := m.errs[v.Kind]; err != nil {
		return nil, err
	}
	rec, ok := m.results[v.Kind]
	if !ok {
		return &Recognition{Variant: v.Kind}, nil
	}
	out := *rec
	return &out, nil
}

func (m *mockRecognizer) Close() error {
	return m.closeErr
}

// mockCache is a mock implementation of Cache
type mockCache struct {
	entries map[string][]byte
	getErr  error
	setErr  error
	sets    int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string][]byte)}
}

func (m *mockCache) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (m *mockCache) Set(_ context.Context, key string, value []byte) error {
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.entries[key] = value
	return nil
}

func (m *mockCache) Close() error {
	return nil
}

// mockRedis is a mock implementation of redisClient
type mockRedis struct {
	values map[string]string
	ttl    time.Duration
	getErr error
	setErr error
}

func (m *mockRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if m.getErr != nil {
		return redis.NewStringResult("", m.getErr)
	}
	v, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if m.setErr != nil {
		return redis.NewStatusResult("", m.setErr)
	}
	m.values[key] = string(value.([]byte))
	m.ttl = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *mockRedis) Close() error {
	return nil
}

var _ = Describe("BoltCache", func() {
	var (
		cache *BoltCache
		ctx   = context.Background()
	)

	BeforeEach(func() {
		var err error
		cache, err = NewBoltCache(filepath.Join(GinkgoT().TempDir(), "cache.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(cache.Close()).To(Succeed())
	})

	It("should return ErrCacheMiss for unknown keys", func() {
		_, err := cache.Get(ctx, "missing")
		Expect(errors.Is(err, ErrCacheMiss)).To(BeTrue())
	})

	It("should round-trip values", func() {
		Expect(cache.Set(ctx, "k", []byte("v"))).To(Succeed())
		v, err := cache.Get(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal([]byte("v")))
	})

	It("should overwrite values", func() {
		Expect(cache.Set(ctx, "k", []byte("one"))).To(Succeed())
		Expect(cache.Set(ctx, "k", []byte("two"))).To(Succeed())
		v, err := cache.Get(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal([]byte("two")))
	})
})

var _ = Describe("RedisCache", func() {
	var (
		client *mockRedis
		cache  *RedisCache
		ctx    = context.Background()
	)

	BeforeEach(func() {
		client = &mockRedis{values: make(map[string]string)}
		cache = newRedisCacheWithClient(client, RedisConfig{TTL: time.Hour})
	})

	It("should translate redis.Nil into ErrCacheMiss", func() {
		_, err := cache.Get(ctx, "missing")
		Expect(errors.Is(err, ErrCacheMiss)).To(BeTrue())
	})

	It("should store with the prefix and TTL", func() {
		Expect(cache.Set(ctx, "k", []byte("v"))).To(Succeed())
		Expect(client.values).To(HaveKeyWithValue("splitbill:recognition:k", "v"))
		Expect(client.ttl).To(Equal(time.Hour))

		v, err := cache.Get(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal([]byte("v")))
	})

	It("should wrap connection errors", func() {
		client.getErr = errors.New("connection refused")
		_, err := cache.Get(ctx, "k")
		Expect(err).To(MatchError(ContainSubstring("connection refused")))
		Expect(errors.Is(err, ErrCacheMiss)).To(BeFalse())
	})

	It("should report write errors", func() {
		client.setErr = errors.New("read only replica")
		Expect(cache.Set(ctx, "k", []byte("v"))).To(MatchError(ContainSubstring("read only replica")))
	})
})

var _ = Describe("CachedRecognizer", func() {
	var (
		inner    *mockRecognizer
		cache    *mockCache
		cached   *CachedRecognizer
		variant  Variant
		hints    []string
		rec      *Recognition
		err      error
		expected *Recognition
	)

	BeforeEach(func() {
		inner = newMockRecognizer()
		expected = &Recognition{Text: "Tea 3.00", Confidence: 88, Method: "mock", Variant: VariantEnhanced}
		inner.results[VariantEnhanced] = expected
		cache = newMockCache()
		variant = Variant{Kind: VariantEnhanced, Data: []byte("image")}
		hints = []string{"eng"}
	})

	JustBeforeEach(func() {
		cached = NewCachedRecognizer(inner, cache, "mock")
		rec, err = cached.Recognize(context.Background(), variant, hints)
	})

	It("should delegate on a miss and store the result", func() {
		Expect(err).NotTo(HaveOccurred())
		Expect(rec).To(Equal(expected))
		Expect(inner.calls).To(HaveLen(1))
		Expect(cache.entries).To(HaveLen(1))
	})

	It("should serve repeats from the cache", func() {
		again, err := cached.Recognize(context.Background(), variant, hints)
		Expect(err).NotTo(HaveOccurred())
		Expect(again).To(Equal(expected))
		Expect(inner.calls).To(HaveLen(1))
	})

	It("should key by hints", func() {
		_, err := cached.Recognize(context.Background(), variant, []string{"tha"})
		Expect(err).NotTo(HaveOccurred())
		Expect(inner.calls).To(HaveLen(2))
	})

	It("should key by namespace", func() {
		other := NewCachedRecognizer(inner, cache, "other")
		Expect(other.key(variant, hints)).NotTo(Equal(cached.key(variant, hints)))
	})

	When("the cache is unavailable", func() {
		BeforeEach(func() {
			cache.getErr = errors.New("cache down")
			cache.setErr = errors.New("cache down")
		})

		It("should still recognize", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(rec).To(Equal(expected))
		})
	})

	When("a cache entry is corrupt", func() {
		BeforeEach(func() {
			c := NewCachedRecognizer(inner, cache, "mock")
			cache.entries[c.key(variant, hints)] = []byte("{not json")
		})

		It("should recognize again", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(inner.calls).To(HaveLen(1))
		})
	})

	When("nothing is recognized", func() {
		BeforeEach(func() {
			inner.results[VariantEnhanced] = &Recognition{Variant: VariantEnhanced}
		})

		It("should not cache the empty result", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(cache.sets).To(BeZero())
		})
	})

	When("the recognizer fails", func() {
		BeforeEach(func() {
			inner.errs[VariantEnhanced] = errors.New("model offline")
		})

		It("returns the error", func() {
			Expect(err).To(MatchError("model offline"))
			Expect(cache.sets).To(BeZero())
		})
	})

	It("should close both", func() {
		inner.closeErr = errors.New("close failed")
		Expect(cached.Close()).To(MatchError(ContainSubstring("close failed")))
	})
})
