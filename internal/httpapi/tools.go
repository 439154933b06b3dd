package httpapi

import (
	"encoding/base64"
	"net/http"

	"github.com/evidentia-ai/evidentia/internal/broker"
	"github.com/evidentia-ai/evidentia/internal/httpapi/problem"
	"github.com/evidentia-ai/evidentia/internal/model"
)

func (h *Handlers) brokerErrorCode(err error) model.ErrorCode {
	switch err {
	case broker.ErrNoSearchProvider, broker.ErrNoParser, broker.ErrNoEmbedder, broker.ErrNoGenerator:
		return model.ErrModelUnavailable
	default:
		return model.ErrGatewayError
	}
}

// HandleCaseArchiveURL fetches and archives a URL on behalf of a case,
// recording the Action/ToolTrace through the Tool Broker.
func (h *Handlers) HandleCaseArchiveURL(w http.ResponseWriter, r *http.Request) {
	caseUID := r.PathValue("uid")
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		problem.WriteJSON(w, problem.New(model.ErrValidation, "invalid request body", err.Error(), r.URL.Path))
		return
	}
	result, err := h.broker.ArchiveURL(r.Context(), caseUID, actorFromContext(r.Context()), req.URL)
	if err != nil {
		writeProblem(w, r, err, h.brokerErrorCode(err), "archive_url failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mime_type": result.MimeType,
		"content":   base64.StdEncoding.EncodeToString(result.Content),
	})
}

// HandleToolMetaSearch exposes broker.MetaSearch directly, for MCP/agent
// clients that talk HTTP instead of the MCP stdio transport.
func (h *Handlers) HandleToolMetaSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CaseUID string `json:"case_uid"`
		Query   string `json:"query"`
		Limit   int    `json:"limit"`
	}
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		problem.WriteJSON(w, problem.New(model.ErrValidation, "invalid request body", err.Error(), r.URL.Path))
		return
	}
	results, err := h.broker.MetaSearch(r.Context(), req.CaseUID, actorFromContext(r.Context()), req.Query, req.Limit)
	if err != nil {
		writeProblem(w, r, err, h.brokerErrorCode(err), "meta_search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// HandleToolArchiveURL is the internal-broker-surface equivalent of
// HandleCaseArchiveURL, taking case_uid in the body instead of the path.
func (h *Handlers) HandleToolArchiveURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CaseUID string `json:"case_uid"`
		URL     string `json:"url"`
	}
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		problem.WriteJSON(w, problem.New(model.ErrValidation, "invalid request body", err.Error(), r.URL.Path))
		return
	}
	result, err := h.broker.ArchiveURL(r.Context(), req.CaseUID, actorFromContext(r.Context()), req.URL)
	if err != nil {
		writeProblem(w, r, err, h.brokerErrorCode(err), "archive_url failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mime_type": result.MimeType,
		"content":   base64.StdEncoding.EncodeToString(result.Content),
	})
}

// HandleToolDocParse extracts text from previously archived bytes.
func (h *Handlers) HandleToolDocParse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CaseUID             string `json:"case_uid"`
		ArtifactVersionUID  string `json:"artifact_version_uid"`
		SourceURL           string `json:"source_url"`
		MimeType            string `json:"mime_type"`
		ContentBase64       string `json:"content_base64"`
	}
	if err := decodeJSON(r, &req, h.maxRequestBodyBytes); err != nil {
		problem.WriteJSON(w, problem.New(model.ErrValidation, "invalid request body", err.Error(), r.URL.Path))
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.ContentBase64)
	if err != nil {
		problem.WriteJSON(w, problem.New(model.ErrValidation, "invalid request", "content_base64 is not valid base64", r.URL.Path))
		return
	}
	text, parseErr, err := h.broker.DocParse(r.Context(), req.CaseUID, actorFromContext(r.Context()), req.ArtifactVersionUID, req.SourceURL, req.MimeType, content)
	if err != nil {
		writeProblem(w, r, err, h.brokerErrorCode(err), "doc_parse failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"text": text, "parse_error": parseErr})
}
