package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/splitbill/internal/extract"
	"github.com/zombor/splitbill/internal/scanning"
)

const (
	maxFormSize = int64(50 << 20) // 50MB
	maxJSONSize = int64(1 << 20)

	manualEntryMessage = "No items could be detected on this receipt. Please enter items manually."
	failureMessage     = "The receipt could not be processed. Please try again."
	xlsxContentType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON writes v as a JSON response with the given status
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// jsonError writes an error response with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{
		"error": message,
	})
}

// writeServiceError maps service errors onto HTTP statuses; fallback is used
// for errors that are not the caller's fault
func writeServiceError(w http.ResponseWriter, err error, fallback int) {
	switch {
	case errors.Is(err, extract.ErrNoItemsDetected),
		errors.Is(err, extract.ErrNoTextRecognized),
		errors.Is(err, scanning.ErrLowConfidence):
		jsonError(w, manualEntryMessage, http.StatusUnprocessableEntity)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, scanning.ErrUnsupportedSource):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, scanning.ErrForbiddenHost):
		jsonError(w, "Images cannot be fetched from this address", http.StatusBadRequest)
	case errors.Is(err, context.DeadlineExceeded):
		jsonError(w, "Scanning took too long. Please try again with a clearer photo.", http.StatusGatewayTimeout)
	default:
		// upstream and transport details stay in the log
		slog.Error("Request failed", "status", fallback, "error", err)
		jsonError(w, failureMessage, fallback)
	}
}

// decodeJSON reads a bounded JSON request body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONSize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Error("Error decoding request body", "path", r.URL.Path, "error", err)
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// contentTypeFor determines an upload's content type, falling back to its extension
func contentTypeFor(declared, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleScanReceipt handles receipt image upload and scanning
func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	// Parse multipart form (max 50MB to handle high-resolution phone photos)
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize+(1<<20))
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > maxFormSize {
		jsonError(w, "File is too large. Maximum size is 50MB. Please compress or resize your image.", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := contentTypeFor(header.Header.Get("Content-Type"), header.Filename)
	hints := r.MultipartForm.Value["lang"]

	result, err := s.service.ScanReceipt(r.Context(), header.Filename, data, contentType, hints)
	if err != nil {
		slog.Error("Error scanning receipt", "filename", header.Filename, "error", err)
		writeServiceError(w, err, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleScanURL scans a receipt image fetched from a URL
func (s *Server) handleScanURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImageURL  string   `json:"imageUrl"`
		Languages []string `json:"languages"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.service.ScanURL(r.Context(), req.ImageURL, req.Languages)
	if err != nil {
		slog.Error("Error scanning receipt URL", "url", req.ImageURL, "error", err)
		writeServiceError(w, err, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleParseText extracts receipt data from already recognized text
func (s *Server) handleParseText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text      string   `json:"text"`
		Languages []string `json:"languages"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	data, err := s.service.ParseText(req.Text, req.Languages)
	if err != nil {
		writeServiceError(w, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, data)
}

// handleExport returns the receipt as an XLSX download
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var data extract.ReceiptData
	if !decodeJSON(w, r, &data) {
		return
	}

	out, filename, err := s.service.Export(&data)
	if err != nil {
		slog.Error("Error exporting receipt", "error", err)
		writeServiceError(w, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := w.Write(out); err != nil {
		slog.Error("Error writing export", "error", err)
	}
}

// handleLanguages lists the supported language hints
func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Languages())
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
