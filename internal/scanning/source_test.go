package scanning

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/netip"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

// mockS3 is a mock implementation of s3API
type mockS3 struct {
	objects     map[string][]byte
	contentType string
	err         error
	lastInput   *s3.GetObjectInput
}

func (m *mockS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.lastInput = params
	if m.err != nil {
		return nil, m.err
	}
	data, ok := m.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	out := &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}
	if m.contentType != "" {
		out.ContentType = aws.String(m.contentType)
	}
	return out, nil
}

var pngMagic = []byte("\x89PNG\r\n\x1a\n0000")

var _ = Describe("HTTPSource", func() {
	var (
		server *ghttp.Server
		source *HTTPSource
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		source = NewHTTPSource(HTTPSourceConfig{AllowPrivate: true})
	})

	AfterEach(func() {
		server.Close()
	})

	It("should download the image with its content type", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodGet, "/receipt.jpg"),
			ghttp.RespondWith(http.StatusOK, "jpeg-bytes", http.Header{"Content-Type": []string{"image/jpeg"}}),
		))

		data, contentType, err := source.Fetch(context.Background(), server.URL()+"/receipt.jpg")
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("jpeg-bytes")))
		Expect(contentType).To(Equal("image/jpeg"))
	})

	It("should sniff generic content types", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusOK, pngMagic, http.Header{"Content-Type": []string{"application/octet-stream"}}))

		_, contentType, err := source.Fetch(context.Background(), server.URL()+"/blob")
		Expect(err).NotTo(HaveOccurred())
		Expect(contentType).To(Equal("image/png"))
	})

	It("should fail on non-200 responses", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, "missing"))

		_, _, err := source.Fetch(context.Background(), server.URL()+"/missing")
		Expect(err).To(MatchError(ContainSubstring("status 404")))
	})

	It("should reject other schemes", func() {
		_, _, err := source.Fetch(context.Background(), "ftp://127.0.0.1/receipt.jpg")
		Expect(errors.Is(err, ErrUnsupportedSource)).To(BeTrue())
	})

	When("hosts are restricted", func() {
		BeforeEach(func() {
			source = NewHTTPSource(HTTPSourceConfig{AllowedHosts: []string{"127.0.0.1"}, AllowPrivate: true})
		})

		It("should fetch from a listed host", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, pngMagic))

			_, _, err := source.Fetch(context.Background(), server.URL()+"/receipt.png")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should refuse an unlisted host without connecting", func() {
			_, port, err := net.SplitHostPort(server.Addr())
			Expect(err).NotTo(HaveOccurred())

			_, _, err = source.Fetch(context.Background(), "http://localhost:"+port+"/receipt.png")
			Expect(errors.Is(err, ErrForbiddenHost)).To(BeTrue(), "got %v", err)
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})

		It("should refuse redirects to an unlisted host", func() {
			_, port, err := net.SplitHostPort(server.Addr())
			Expect(err).NotTo(HaveOccurred())
			server.AppendHandlers(ghttp.RespondWith(http.StatusFound, nil, http.Header{
				"Location": []string{"http://localhost:" + port + "/receipt.png"},
			}))

			_, _, err = source.Fetch(context.Background(), server.URL()+"/moved")
			Expect(errors.Is(err, ErrForbiddenHost)).To(BeTrue(), "got %v", err)
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	When("private addresses are not allowed", func() {
		BeforeEach(func() {
			source = NewHTTPSource(HTTPSourceConfig{})
		})

		It("should refuse the link-local metadata address", func() {
			_, _, err := source.Fetch(context.Background(), "http://169.254.169.254/latest/meta-data/")
			Expect(errors.Is(err, ErrForbiddenHost)).To(BeTrue(), "got %v", err)
		})

		It("should refuse a private address", func() {
			_, _, err := source.Fetch(context.Background(), "http://10.0.0.8/receipt.png")
			Expect(errors.Is(err, ErrForbiddenHost)).To(BeTrue(), "got %v", err)
		})

		It("should refuse a name that resolves to loopback", func() {
			_, port, err := net.SplitHostPort(server.Addr())
			Expect(err).NotTo(HaveOccurred())

			_, _, err = source.Fetch(context.Background(), "http://localhost:"+port+"/receipt.png")
			Expect(errors.Is(err, ErrForbiddenHost)).To(BeTrue(), "got %v", err)
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})

	DescribeTable("host patterns",
		func(allowed []string, host string, expected bool) {
			h := NewHTTPSource(HTTPSourceConfig{AllowedHosts: allowed})
			Expect(h.hostAllowed(host)).To(Equal(expected))
		},
		Entry("no list", nil, "images.example.com", true),
		Entry("exact", []string{"images.example.com"}, "Images.Example.com", true),
		Entry("other host", []string{"images.example.com"}, "example.com", false),
		Entry("wildcard subdomain", []string{"*.example.com"}, "cdn.example.com", true),
		Entry("wildcard apex", []string{"*.example.com"}, "example.com", false),
		Entry("wildcard lookalike", []string{"*.example.com"}, "badexample.com", false),
		Entry("any", []string{"*"}, "anything.test", true),
	)

	DescribeTable("publicAddr",
		func(addr string, expected bool) {
			Expect(publicAddr(netip.MustParseAddr(addr))).To(Equal(expected))
		},
		Entry("public v4", "93.184.216.34", true),
		Entry("public v6", "2606:4700::1111", true),
		Entry("loopback", "127.0.0.1", false),
		Entry("private", "192.168.1.10", false),
		Entry("link-local", "169.254.169.254", false),
		Entry("shared address space", "100.64.0.1", false),
		Entry("unspecified", "0.0.0.0", false),
		Entry("mapped loopback", "::ffff:127.0.0.1", false),
		Entry("v6 loopback", "::1", false),
		Entry("unique local", "fd00::1", false),
	)
})

var _ = Describe("S3Source", func() {
	var (
		client *mockS3
		source *S3Source
	)

	BeforeEach(func() {
		client = &mockS3{objects: map[string][]byte{"receipts/2024/lunch.png": pngMagic}}
		source = &S3Source{client: client}
	})

	It("should fetch the object", func() {
		data, contentType, err := source.Fetch(context.Background(), "s3://receipts/2024/lunch.png")
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal(pngMagic))
		Expect(contentType).To(Equal("image/png"))
		Expect(aws.ToString(client.lastInput.Bucket)).To(Equal("receipts"))
		Expect(aws.ToString(client.lastInput.Key)).To(Equal("2024/lunch.png"))
	})

	It("should prefer the stored content type", func() {
		client.contentType = "image/heic"
		_, contentType, err := source.Fetch(context.Background(), "s3://receipts/2024/lunch.png")
		Expect(err).NotTo(HaveOccurred())
		Expect(contentType).To(Equal("image/heic"))
	})

	It("should reject references without a key", func() {
		_, _, err := source.Fetch(context.Background(), "s3://receipts")
		Expect(err).To(MatchError(ContainSubstring("bucket and key")))
	})

	It("should reject other schemes", func() {
		_, _, err := source.Fetch(context.Background(), "https://example.com/a.png")
		Expect(errors.Is(err, ErrUnsupportedSource)).To(BeTrue())
	})

	It("should wrap client errors", func() {
		client.err = errors.New("access denied")
		_, _, err := source.Fetch(context.Background(), "s3://receipts/2024/lunch.png")
		Expect(err).To(MatchError(ContainSubstring("access denied")))
	})
})

var _ = Describe("LocalSource", func() {
	var (
		dir    string
		source *LocalSource
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "receipt.png"), pngMagic, 0o600)).To(Succeed())
		var err error
		source, err = NewLocalSource(dir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should read relative paths", func() {
		data, contentType, err := source.Fetch(context.Background(), "receipt.png")
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal(pngMagic))
		Expect(contentType).To(Equal("image/png"))
	})

	It("should read file URLs inside the base", func() {
		_, _, err := source.Fetch(context.Background(), "file://"+filepath.Join(dir, "receipt.png"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should refuse paths outside the base", func() {
		_, _, err := source.Fetch(context.Background(), "../etc/passwd")
		Expect(err).To(MatchError(ContainSubstring("outside")))
	})

	It("should report missing files", func() {
		_, _, err := source.Fetch(context.Background(), "missing.png")
		Expect(err).To(HaveOccurred())
	})

	It("should refuse symlinks leading outside the base", func() {
		outside := filepath.Join(GinkgoT().TempDir(), "secret.png")
		Expect(os.WriteFile(outside, pngMagic, 0o600)).To(Succeed())
		Expect(os.Symlink(outside, filepath.Join(dir, "link.png"))).To(Succeed())

		_, _, err := source.Fetch(context.Background(), "link.png")
		Expect(err).To(MatchError(ContainSubstring("outside")))
	})

	It("should follow symlinks that stay inside the base", func() {
		Expect(os.Symlink(filepath.Join(dir, "receipt.png"), filepath.Join(dir, "latest.png"))).To(Succeed())

		data, _, err := source.Fetch(context.Background(), "latest.png")
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal(pngMagic))
	})
})

var _ = Describe("MultiSource", func() {
	var (
		local  *LocalSource
		multi  *MultiSource
		client *mockS3
	)

	BeforeEach(func() {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "receipt.png"), pngMagic, 0o600)).To(Succeed())
		var err error
		local, err = NewLocalSource(dir)
		Expect(err).NotTo(HaveOccurred())
		client = &mockS3{objects: map[string][]byte{"b/k.png": []byte("from s3")}}
		multi = NewMultiSource().
			Register(local, "file").
			Register(&S3Source{client: client}, "s3")
	})

	It("should route plain paths to the file source", func() {
		data, _, err := multi.Fetch(context.Background(), "receipt.png")
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal(pngMagic))
	})

	It("should route by scheme", func() {
		data, _, err := multi.Fetch(context.Background(), "S3://b/k.png")
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal([]byte("from s3")))
	})

	It("should reject unknown schemes", func() {
		_, _, err := multi.Fetch(context.Background(), "ftp://host/receipt.png")
		Expect(errors.Is(err, ErrUnsupportedSource)).To(BeTrue())
	})
})
