package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/linuxmatters/sonogram/internal/audio"
	"github.com/linuxmatters/sonogram/internal/classify"
	"github.com/linuxmatters/sonogram/internal/pipeline"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in
// memory before spilling to disk.
const multipartMemory = 32 << 20

// upload is one accepted audio file.
type upload struct {
	name      string
	mediaType string
	data      []byte
}

// httpError carries the status an upload problem maps to.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

type errorBody struct {
	Error string `json:"error"`
}

// readUpload extracts the "audio" field, enforcing the size limit and an
// audio media type or known extension.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	limit := s.cfg.MaxUploadBytes
	if r.ContentLength > limit {
		return nil, &httpError{http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", limit)}
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &httpError{http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", limit)}
		}
		return nil, &httpError{http.StatusBadRequest, "No audio file provided"}
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		return nil, &httpError{http.StatusBadRequest, "No audio file provided"}
	}
	defer file.Close()

	if header.Filename == "" {
		return nil, &httpError{http.StatusBadRequest, "No file selected"}
	}

	mediaType := header.Header.Get("Content-Type")
	if !isAudioType(mediaType) {
		mediaType = audio.MediaTypeForFile(header.Filename)
	}
	if mediaType == "" {
		return nil, &httpError{http.StatusBadRequest,
			"Unsupported file format. Supported: " + strings.Join(classify.AllowedExtensions, ", ")}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, &httpError{http.StatusBadRequest, "failed to read upload"}
	}
	return &upload{name: header.Filename, mediaType: mediaType, data: data}, nil
}

func isAudioType(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(mediaType), "audio/")
}

// POST /api/spectrogram
func (s *Server) handleSpectrogram(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.pipeline.Run(r.Context(), up.data, up.mediaType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type analyzeResponse struct {
	Spectrogram         *pipeline.Result `json:"spectrogram"`
	Classification      *classify.Result `json:"classification,omitempty"`
	ClassificationError string           `json:"classificationError,omitempty"`
}

// POST /api/analyze runs the pipeline and the classifier side by side. A
// classifier failure is reported without dropping the image.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var resp analyzeResponse
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		res, err := s.pipeline.Run(ctx, up.data, up.mediaType)
		resp.Spectrogram = res
		return err
	})
	g.Go(func() error {
		res, err := s.classifier.Classify(ctx, up.name, up.data)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Warn("classification failed", "file", up.name, "error", err)
			}
			resp.ClassificationError = err.Error()
			return nil
		}
		resp.Classification = res
		return nil
	})
	if err := g.Wait(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type selectResponse struct {
	SessionID  string         `json:"sessionId"`
	Generation uint64         `json:"generation"`
	State      pipeline.State `json:"state"`
}

// POST /api/sessions/{id}/file
func (s *Server) handleSessionFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	up, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	gen, err := s.sessions.selectFile(id, up.name, up.data, up.mediaType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, selectResponse{
		SessionID:  id,
		Generation: gen,
		State:      pipeline.StateRunning,
	})
}

// GET /api/sessions/{id}
func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown session"})
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// DELETE /api/sessions/{id}
func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	s.sessions.remove(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps err onto a status code and an {"error": ...} body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var he *httpError
	switch {
	case errors.As(err, &he):
		status = he.status
	case errors.Is(err, audio.ErrDecode):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, errSessionClosed):
		status = http.StatusConflict
	case errors.Is(err, errTooManySessions):
		status = http.StatusTooManyRequests
	case errors.Is(err, errStoreClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// writeJSON encodes v with the given status, falling back to a plain 500
// if encoding fails.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
