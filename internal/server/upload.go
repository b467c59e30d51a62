package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/h2non/filetype"

	"github.com/logstory/logstory-go/internal/source"
	"github.com/logstory/logstory-go/internal/storage"
)

// multipartMemory is how much of a multipart form is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

type uploadResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Lines   int    `json:"lines"`
	Size    int64  `json:"size"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		// A file field submitted without a filename arrives as a plain value.
		if _, ok := r.MultipartForm.Value["file"]; ok {
			writeError(w, http.StatusBadRequest, "No file selected")
			return
		}
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	hdr := headers[0]
	if hdr.Filename == "" {
		writeError(w, http.StatusBadRequest, "No file selected")
		return
	}

	logType := r.FormValue("log_type")
	if logType == "" {
		writeError(w, http.StatusBadRequest, "No log type specified")
		return
	}
	if !source.ValidLogType(logType) {
		writeError(w, http.StatusBadRequest, "Invalid log type")
		return
	}

	data, err := readPart(hdr, limit)
	if errors.Is(err, source.ErrTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	contentType, ok := sniff(data)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unsupported file type: "+contentType)
		return
	}

	lines, err := s.decoder.Lines(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not decode file: "+err.Error())
		return
	}

	meta, err := s.store.Put(r.Context(), storage.Meta{
		ID:          uuid.NewString(),
		Owner:       storage.OwnerFrom(r.Context()),
		LogType:     logType,
		Filename:    cleanFilename(hdr.Filename),
		ContentType: contentType,
		Lines:       len(lines),
	}, data)
	if err != nil {
		s.log.Error("store upload failed", "log_type", logType, "error", err)
		writeError(w, http.StatusInternalServerError, "Could not store file")
		return
	}

	s.log.Info("upload stored",
		"id", meta.ID,
		"log_type", logType,
		"lines", meta.Lines,
		"size", meta.Size)
	writeJSON(w, http.StatusOK, uploadResponse{
		Success: true,
		ID:      meta.ID,
		Lines:   meta.Lines,
		Size:    meta.Size,
	})
}

func readPart(hdr *multipart.FileHeader, limit int64) ([]byte, error) {
	if hdr.Size > limit {
		return nil, source.ErrTooLarge
	}
	f, err := hdr.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, source.ErrTooLarge
	}
	return data, nil
}

// sniff returns the content type of an upload and whether it is accepted.
// Text and the compression formats the decoder understands are accepted;
// any other recognised binary format is not.
func sniff(data []byte) (string, bool) {
	switch source.Compressed(data) {
	case "gzip":
		return "application/gzip", true
	case "x-bzip2":
		return "application/x-bzip2", true
	case "zstd":
		return "application/zstd", true
	}
	kind, _ := filetype.Match(data)
	if kind != filetype.Unknown {
		return kind.MIME.Value, false
	}
	return "text/plain", true
}

// cleanFilename reduces a client-supplied filename to a safe slug that keeps
// its extension.
func cleanFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := strings.ToLower(filepath.Ext(base))
	stem := slug.Make(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" {
		stem = "upload"
	}
	if ext != "" && slug.Make(ext) == "" {
		ext = ""
	}
	return stem + ext
}
