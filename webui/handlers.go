package webui

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"promptpaint/imagegen"
	"promptpaint/metrics"
	"promptpaint/pipeline"
	"promptpaint/samples"
	"promptpaint/shutdown"
)

// BlankPromptMessage is shown when the form is submitted without a prompt.
const BlankPromptMessage = "Please enter a prompt."

const (
	maxRequestBody     = 64 << 10
	defaultStatusLimit = 10
	maxStatusLimit     = 50
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.writePage(w, pageData{Enhance: true})
}

func (s *Server) handleGenerateForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	data := pageData{
		Prompt:  r.PostFormValue("prompt"),
		Enhance: r.PostFormValue("enhance") != "",
	}
	if strings.TrimSpace(data.Prompt) == "" {
		data.Warning = BlankPromptMessage
		s.writePage(w, data)
		return
	}

	result, err := s.generate(r.Context(), data.Prompt, data.Enhance)
	if err != nil {
		data.Error = err.Error()
		s.writePage(w, data)
		return
	}

	preview, width := s.preview(result.Image)
	data.PreviewURL = template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(preview))
	data.PreviewWidth = width
	data.SampleURL = "/samples/" + url.PathEscape(filepath.Base(result.Path))
	data.PromptUsed = result.Prompt
	data.SavedPath = result.Path
	s.writePage(w, data)
}

// preview scales img down to the configured width. The full image is used
// if scaling fails.
func (s *Server) preview(img *imagegen.Image) ([]byte, int) {
	width := s.config.PreviewWidth
	if img.Width > 0 && img.Width < width {
		width = img.Width
	}
	thumb, err := imagegen.Thumbnail(img.Data, width)
	if err != nil {
		s.logger.Warn("preview scaling failed, using full image", zap.Error(err))
		return img.Data, width
	}
	return thumb, width
}

func (s *Server) writePage(w http.ResponseWriter, data pageData) {
	data.Version = s.config.Version
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := renderPage(w, data); err != nil {
		s.logger.Error("render page", zap.Error(err))
	}
}

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	Prompt string `json:"prompt"`

	// Enhance defaults to true when omitted, like the form checkbox.
	Enhance *bool `json:"enhance,omitempty"`
}

// GenerateResponse is the success body of POST /api/generate.
type GenerateResponse struct {
	Prompt        string `json:"prompt"`
	Path          string `json:"path"`
	ImageBase64   string `json:"image_base64"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	CorrelationID string `json:"correlation_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleGenerateAPI(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: BlankPromptMessage})
		return
	}
	enhance := req.Enhance == nil || *req.Enhance

	result, err := s.generate(r.Context(), req.Prompt, enhance)
	if err != nil {
		writeJSON(w, statusForError(err), errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, GenerateResponse{
		Prompt:        result.Prompt,
		Path:          result.Path,
		ImageBase64:   base64.StdEncoding.EncodeToString(result.Image.Data),
		Width:         result.Image.Width,
		Height:        result.Image.Height,
		CorrelationID: result.CorrelationID,
	})
}

func statusForError(err error) int {
	switch {
	case pipeline.IsUnsafePrompt(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shutdown.ErrTrackerClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleSample serves one file from the samples directory. Any single .png
// path element is accepted, since sample names carry raw prompt tokens.
func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Ext(name) != samples.Extension {
		http.NotFound(w, r)
		return
	}
	path := filepath.Join(s.config.SamplesDir, name)
	if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, path)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.config.Version,
	})
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Summary metrics.Summary            `json:"summary"`
	Recent  []metrics.GenerationRecord `json:"recent"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "status history is disabled"})
		return
	}

	limit := defaultStatusLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxStatusLimit)
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Summary: s.history.Summary(),
		Recent:  s.history.Recent(limit),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
