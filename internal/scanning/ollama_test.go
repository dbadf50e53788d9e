package scanning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		ollama  *Ollama
		request ollamaChatRequest
		rec     *Recognition
		err     error
		reply   ollamaChatResponse
		status  int
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		status = http.StatusOK
		reply = ollamaChatResponse{
			Message: ollamaMessage{
				Role:    "assistant",
				Content: `{"text": "Tea 3.00", "confidence": 75}`,
			},
			Done: true,
		}
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
			ghttp.VerifyContentType("application/json"),
			func(w http.ResponseWriter, r *http.Request) {
				body, readErr := io.ReadAll(r.Body)
				Expect(readErr).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &request)).To(Succeed())
			},
			ghttp.RespondWithJSONEncodedPtr(&status, &reply),
		))

		var newErr error
		ollama, newErr = NewOllama(server.URL()+"/", "test-model")
		Expect(newErr).NotTo(HaveOccurred())
		rec, err = ollama.Recognize(context.Background(), Variant{Kind: VariantOriginal, Data: []byte("png")}, []string{"jpn"})
	})

	It("should not return an error", func() {
		Expect(err).NotTo(HaveOccurred())
	})

	It("should parse the recognition", func() {
		Expect(rec.Text).To(Equal("Tea 3.00"))
		Expect(rec.Confidence).To(Equal(75.0))
		Expect(rec.Method).To(Equal(MethodOllama))
		Expect(rec.Variant).To(Equal(VariantOriginal))
	})

	It("should send the model, prompt and image", func() {
		Expect(request.Model).To(Equal("test-model"))
		Expect(request.Stream).To(BeFalse())
		Expect(request.Format).To(Equal("json"))
		Expect(request.Messages).To(HaveLen(2))
		Expect(request.Messages[1].Content).To(ContainSubstring("Japanese"))
		Expect(request.Messages[1].Images).To(Equal([]string{base64.StdEncoding.EncodeToString([]byte("png"))}))
	})

	When("the API fails", func() {
		BeforeEach(func() {
			status = http.StatusInternalServerError
		})

		It("returns the status in the error", func() {
			Expect(err).To(MatchError(ContainSubstring("status 500")))
		})
	})

	When("the model answers with prose", func() {
		BeforeEach(func() {
			reply.Message.Content = "I cannot read this image."
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	It("should close without error", func() {
		Expect(ollama.Close()).To(Succeed())
	})
})

var _ = Describe("NewOllama", func() {
	It("should apply defaults", func() {
		o, err := NewOllama("", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(o.baseURL).To(Equal("http://localhost:11434"))
		Expect(o.model).To(Equal("qwen2.5vl"))
	})
})
