package scanning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MaxImageSize bounds every fetched image, matching the upload limit
const MaxImageSize = 50 << 20

// ErrUnsupportedSource is returned for references no source can fetch
var ErrUnsupportedSource = errors.New("unsupported image source")

// Source fetches receipt images by reference
type Source interface {
	// Fetch returns the image bytes and their content type
	Fetch(ctx context.Context, ref string) ([]byte, string, error)
}

// readLimited reads at most MaxImageSize bytes and fails on larger bodies
func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxImageSize {
		return nil, fmt.Errorf("image exceeds %d bytes", MaxImageSize)
	}
	return data, nil
}

// contentTypeOf prefers the declared type unless it is generic
func contentTypeOf(declared string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared == "" || strings.HasPrefix(declared, "application/octet-stream") || strings.HasPrefix(declared, "binary/") {
		return http.DetectContentType(data)
	}
	return declared
}

// ErrForbiddenHost is returned for URLs the HTTP source may not fetch
var ErrForbiddenHost = errors.New("image host not allowed")

// sharedAddressSpace is the carrier-grade NAT range, which IsPrivate misses
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// HTTPSourceConfig restricts what an HTTPSource may download
type HTTPSourceConfig struct {
	// AllowedHosts lists host names, "*.domain" suffixes or "*". Empty
	// allows any host.
	AllowedHosts []string
	// AllowPrivate permits loopback, private and link-local addresses
	AllowPrivate bool
	Timeout      time.Duration
}

// HTTPSource fetches images over http and https
type HTTPSource struct {
	client       *http.Client
	allowedHosts []string
}

// NewHTTPSource creates an HTTPSource. A zero timeout means 30 seconds.
// Unless AllowPrivate is set, every dialed address is checked so a public
// name cannot resolve to an internal one.
func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	h := &HTTPSource{}
	for _, host := range cfg.AllowedHosts {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			h.allowedHosts = append(h.allowedHosts, host)
		}
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	if !cfg.AllowPrivate {
		dialer.Control = func(_, address string, _ syscall.RawConn) error {
			addr, err := netip.ParseAddrPort(address)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrForbiddenHost, address)
			}
			if !publicAddr(addr.Addr()) {
				return fmt.Errorf("%w: %s", ErrForbiddenHost, addr.Addr())
			}
			return nil
		}
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	h.client = &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return h.checkURL(req.URL)
		},
	}
	return h
}

// publicAddr reports whether ip is a globally routable unicast address
func publicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsGlobalUnicast() && !ip.IsPrivate() && !sharedAddressSpace.Contains(ip)
}

func (h *HTTPSource) hostAllowed(host string) bool {
	if len(h.allowedHosts) == 0 {
		return true
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, allowed := range h.allowedHosts {
		switch {
		case allowed == "*", allowed == host:
			return true
		case strings.HasPrefix(allowed, "*.") && strings.HasSuffix(host, allowed[1:]):
			return true
		}
	}
	return false
}

func (h *HTTPSource) checkURL(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %s", ErrUnsupportedSource, u.Scheme)
	}
	if u.Hostname() == "" || !h.hostAllowed(u.Hostname()) {
		return fmt.Errorf("%w: %s", ErrForbiddenHost, u.Hostname())
	}
	return nil
}

// Fetch downloads the image at ref
func (h *HTTPSource) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	if err := h.checkURL(req.URL); err != nil {
		return nil, "", err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("downloading image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("downloading image: status %d", resp.StatusCode)
	}
	data, err := readLimited(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading image: %w", err)
	}
	return data, contentTypeOf(resp.Header.Get("Content-Type"), data), nil
}

// s3API is the part of *s3.Client the source uses
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config configures an S3 or S3-compatible image source
type S3Config struct {
	Region    string
	Endpoint  string // empty for AWS, set for R2/MinIO
	AccessKey string
	SecretKey string
}

// S3Source fetches s3://bucket/key references
type S3Source struct {
	client s3API
}

// NewS3Source loads AWS configuration and creates an S3Source. Static
// credentials are used when both keys are set, otherwise the default chain.
func NewS3Source(ctx context.Context, cfg S3Config) (*S3Source, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Source{client: client}, nil
}

// Fetch downloads the object named by ref
func (s *S3Source) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	bucket, key, err := parseS3Ref(ref)
	if err != nil {
		return nil, "", err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("getting object %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := readLimited(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading object: %w", err)
	}
	return data, contentTypeOf(aws.ToString(out.ContentType), data), nil
}

func parseS3Ref(ref string) (string, string, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "s3" {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedSource, ref)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("s3 reference needs a bucket and key: %s", ref)
	}
	return u.Host, key, nil
}

// LocalSource reads images from a base directory
type LocalSource struct {
	basePath string
	realPath string // basePath with symlinks resolved
}

// NewLocalSource creates a LocalSource rooted at basePath
func NewLocalSource(basePath string) (*LocalSource, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolving base path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving base path: %w", err)
	}
	return &LocalSource{basePath: abs, realPath: resolved}, nil
}

// Fetch reads a file. ref may be a plain path or a file:// URL and must stay
// inside the base directory once symlinks are resolved.
func (l *LocalSource) Fetch(_ context.Context, ref string) ([]byte, string, error) {
	path := strings.TrimPrefix(ref, "file://")
	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(l.basePath, path)
	}
	fullPath = filepath.Clean(fullPath)
	if !within(l.basePath, fullPath) {
		return nil, "", fmt.Errorf("path %s is outside %s", ref, l.basePath)
	}

	resolved, err := filepath.EvalSymlinks(fullPath)
	if err != nil {
		return nil, "", fmt.Errorf("reading file: %w", err)
	}
	if !within(l.realPath, resolved) {
		return nil, "", fmt.Errorf("path %s is outside %s", ref, l.basePath)
	}

	f, err := os.Open(resolved)
	if err != nil {
		return nil, "", fmt.Errorf("reading file: %w", err)
	}
	defer f.Close()

	data, err := readLimited(f)
	if err != nil {
		return nil, "", fmt.Errorf("reading file: %w", err)
	}
	return data, contentTypeOf("", data), nil
}

func within(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// MultiSource dispatches references to sources by URL scheme. References
// without a scheme use the "file" source.
type MultiSource struct {
	sources map[string]Source
}

// NewMultiSource creates an empty MultiSource
func NewMultiSource() *MultiSource {
	return &MultiSource{sources: make(map[string]Source)}
}

// Register routes the given schemes to src
func (m *MultiSource) Register(src Source, schemes ...string) *MultiSource {
	for _, s := range schemes {
		m.sources[strings.ToLower(s)] = src
	}
	return m
}

// Fetch dispatches ref by scheme
func (m *MultiSource) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	scheme := "file"
	if i := strings.Index(ref, "://"); i > 0 {
		scheme = strings.ToLower(ref[:i])
	}
	src, ok := m.sources[scheme]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedSource, scheme)
	}
	return src.Fetch(ctx, ref)
}
