package scanning

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// testImage draws a light receipt-like image with a dark stripe
func testImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBA{R: 240, G: 236, B: 220, A: 255}
			if y%10 < 2 {
				c = color.RGBA{R: 30, G: 30, B: 30, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func testPNG(width, height int) []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, testImage(width, height))).To(Succeed())
	return buf.Bytes()
}

func testJPEG(width, height int) []byte {
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, testImage(width, height), nil)).To(Succeed())
	return buf.Bytes()
}

func decodeSize(data []byte) (int, int) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	Expect(err).NotTo(HaveOccurred())
	return cfg.Width, cfg.Height
}

var _ = Describe("PrepareImage", func() {
	It("should pass PNG through untouched", func() {
		data := testPNG(20, 20)
		out, converted, err := PrepareImage(data, "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(converted).To(BeFalse())
		Expect(out).To(Equal(data))
	})

	It("should convert JPEG to PNG", func() {
		out, converted, err := PrepareImage(testJPEG(20, 20), "IMAGE/JPEG; charset=binary")
		Expect(err).NotTo(HaveOccurred())
		Expect(converted).To(BeTrue())
		w, h := decodeSize(out)
		Expect(w).To(Equal(20))
		Expect(h).To(Equal(20))
	})

	It("should default a missing content type to JPEG", func() {
		_, converted, err := PrepareImage(testJPEG(10, 10), "")
		Expect(err).NotTo(HaveOccurred())
		Expect(converted).To(BeTrue())
	})

	It("should reject unknown formats", func() {
		_, _, err := PrepareImage([]byte("not an image"), "image/jpeg")
		Expect(err).To(MatchError(ContainSubstring("unsupported image format")))
	})

	It("should reject empty uploads", func() {
		_, _, err := PrepareImage(nil, "image/png")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Variants", func() {
	It("should return enhanced then original", func() {
		variants, err := Variants(testPNG(100, 60))
		Expect(err).NotTo(HaveOccurred())
		Expect(variants).To(HaveLen(2))
		Expect(variants[0].Kind).To(Equal(VariantEnhanced))
		Expect(variants[1].Kind).To(Equal(VariantOriginal))
		Expect(variants[0].Data).NotTo(Equal(variants[1].Data))
	})

	It("should downscale wide images", func() {
		variants, err := Variants(testPNG(1920, 400))
		Expect(err).NotTo(HaveOccurred())
		for _, v := range variants {
			w, h := decodeSize(v.Data)
			Expect(w).To(Equal(maxVariantWidth))
			Expect(h).To(Equal(200))
		}
	})

	It("should keep narrow images at their size", func() {
		variants, err := Variants(testPNG(300, 500))
		Expect(err).NotTo(HaveOccurred())
		w, _ := decodeSize(variants[1].Data)
		Expect(w).To(Equal(300))
	})

	It("should fail on undecodable data", func() {
		_, err := Variants([]byte("junk"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("format detection", func() {
	It("should detect HEIC brands", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypheic\x00\x00"))).To(BeTrue())
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypmp42\x00\x00"))).To(BeFalse())
		Expect(isHEICFormat([]byte("short"))).To(BeFalse())
	})

	It("should detect HEIC MIME types", func() {
		Expect(isHEICMimeType(" image/HEIF ")).To(BeTrue())
		Expect(isHEICMimeType("image/png")).To(BeFalse())
	})

	It("should detect PDFs by magic", func() {
		Expect(isPDF([]byte("%PDF-1.7\n"), "application/octet-stream")).To(BeTrue())
		Expect(isPDF([]byte("hello"), "application/pdf")).To(BeTrue())
		Expect(isPDF([]byte("hello"), "image/png")).To(BeFalse())
	})
})

var _ = Describe("PDFText", func() {
	It("should refuse rendered variants", func() {
		_, err := PDFText{}.Recognize(context.Background(), Variant{Kind: VariantOriginal}, nil)
		Expect(err).To(HaveOccurred())
	})

	It("should fail on data that is not a PDF", func() {
		_, err := PDFText{}.Recognize(context.Background(), Variant{Kind: VariantDocument, Data: []byte("%PDF-garbage")}, nil)
		Expect(err).To(HaveOccurred())
	})
})
