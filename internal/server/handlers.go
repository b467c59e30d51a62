package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/logstory/logstory-go/internal/source"
	"github.com/logstory/logstory-go/internal/storage"
	"github.com/logstory/logstory-go/pkg/logstory"
	"github.com/logstory/logstory-go/pkg/logstory/rules"
)

const msgLogTypeNotFound = "Log type not found"

type errorResponse struct {
	Error string `json:"error"`
}

type contentResponse struct {
	Content    string `json:"content"`
	TotalLines int    `json:"total_lines"`
}

type validateResponse struct {
	LogType string                `json:"log_type"`
	Valid   bool                  `json:"valid"`
	Errors  []string              `json:"errors"`
	Samples logstory.SampleReport `json:"samples"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// lineStatus maps a line source error to a response status.
func lineStatus(err error) int {
	if errors.Is(err, source.ErrInvalidLogType) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) handleLogTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"log_types": s.rules.LogTypes()})
}

func (s *Server) handleLogContent(w http.ResponseWriter, r *http.Request) {
	logType := r.PathValue("logType")
	lines, err := s.lines.Lines(r.Context(), logType)
	if err != nil && !errors.Is(err, logstory.ErrNoLines) {
		s.log.Warn("read log content failed", "log_type", logType, "error", err)
		writeError(w, lineStatus(err), err.Error())
		return
	}

	preview := lines
	if len(preview) > s.cfg.PreviewLines {
		preview = preview[:s.cfg.PreviewLines]
	}
	writeJSON(w, http.StatusOK, contentResponse{
		Content:    strings.Join(preview, ""),
		TotalLines: len(lines),
	})
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	rs, err := s.rules.Rules(r.Context(), r.PathValue("logType"))
	if errors.Is(err, rules.ErrUnknownLogType) {
		writeError(w, http.StatusNotFound, msgLogTypeNotFound)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]rules.Rule{"patterns": rs})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var req logstory.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, status, msg := s.analyze(r, req)
	if status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// analyze runs one analysis request. Failures are reported as a status
// and a client-facing message.
func (s *Server) analyze(r *http.Request, req logstory.Request) (logstory.ScanResult, int, string) {
	if req.LogType == "" {
		return logstory.ScanResult{}, http.StatusBadRequest, "No log type specified"
	}
	if len(req.Rules) > rules.MaxRuleCount {
		return logstory.ScanResult{}, http.StatusBadRequest, "Too many patterns"
	}
	if req.LineLimit == nil {
		req.LineLimit = logstory.Limit(s.cfg.DefaultLineLimit)
	}

	res, err := s.engine.Analyze(r.Context(), req)
	switch {
	case err == nil:
		return res, http.StatusOK, ""
	case errors.Is(err, rules.ErrUnknownLogType):
		return res, http.StatusNotFound, msgLogTypeNotFound
	case errors.Is(err, source.ErrInvalidLogType):
		return res, http.StatusBadRequest, err.Error()
	default:
		s.log.Warn("analysis failed", "log_type", req.LogType, "error", err)
		return res, http.StatusInternalServerError, err.Error()
	}
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	logType := r.PathValue("logType")
	rs, err := s.rules.Rules(r.Context(), logType)
	if errors.Is(err, rules.ErrUnknownLogType) {
		writeError(w, http.StatusNotFound, msgLogTypeNotFound)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	set := rules.RuleSet{logType: {Timestamps: rs}}
	resp := validateResponse{
		LogType: logType,
		Errors:  errorStrings(logstory.ValidateRuleSet(set)),
	}

	resp.Samples, err = logstory.CheckSamples(r.Context(), set, s.lines)
	if err != nil {
		writeError(w, lineStatus(err), err.Error())
		return
	}
	resp.Valid = len(resp.Errors) == 0 && resp.Samples.OK()
	writeJSON(w, http.StatusOK, resp)
}

// errorStrings flattens a joined error into its messages.
func errorStrings(err error) []string {
	out := []string{}
	if err == nil {
		return out
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, errorStrings(e)...)
		}
		return out
	}
	return append(out, err.Error())
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	metas, err := s.store.List(r.Context(), storage.OwnerFrom(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if metas == nil {
		metas = []storage.Meta{}
	}
	writeJSON(w, http.StatusOK, map[string][]storage.Meta{"uploads": metas})
}

func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	err := s.store.Delete(r.Context(), storage.OwnerFrom(r.Context()), r.PathValue("logType"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Upload not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	signer, ok := s.store.(storage.URLSigner)
	if !ok {
		writeError(w, http.StatusNotImplemented, storage.ErrNotSupported.Error())
		return
	}
	url, err := signer.SignedURL(r.Context(), storage.OwnerFrom(r.Context()), r.PathValue("logType"), signedURLTTL)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Upload not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":     url,
		"expires": int(signedURLTTL.Seconds()),
	})
}
