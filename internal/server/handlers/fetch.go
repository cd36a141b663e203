package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/zdiemer/simplescraper/internal/core"
	"github.com/zdiemer/simplescraper/internal/core/engine"
	apperrors "github.com/zdiemer/simplescraper/internal/errors"
	"github.com/zdiemer/simplescraper/internal/output"
)

// maxFetchRequestBytes caps the JSON body accepted by the fetch endpoint.
const maxFetchRequestBytes = 1 << 20

// Fetcher runs one logical request through the orchestrator.
type Fetcher interface {
	Request(ctx context.Context, method, rawURL string, opts *engine.RequestOptions) (*core.Result, error)
}

// FetchRequest is the body of POST /v1/fetch.
type FetchRequest struct {
	Method   string              `json:"method"`
	URL      string              `json:"url"`
	Params   map[string][]string `json:"params,omitempty"`
	Headers  map[string]string   `json:"headers,omitempty"`
	Data     string              `json:"data,omitempty"`
	JSONBody json.RawMessage     `json:"json_body,omitempty"`
	Text     bool                `json:"text,omitempty"`
	NoCache  bool                `json:"no_cache,omitempty"`
}

// FetchResponse is the body returned by POST /v1/fetch.
type FetchResponse = output.ResultView

// Options converts the request into orchestrator options.
func (req *FetchRequest) Options() (*engine.RequestOptions, error) {
	opts := &engine.RequestOptions{
		Headers: req.Headers,
		Text:    req.Text,
		NoCache: req.NoCache,
	}
	if len(req.Params) > 0 {
		opts.Params = url.Values(req.Params)
	}
	if req.Data != "" {
		opts.Data = []byte(req.Data)
	}
	if len(req.JSONBody) > 0 {
		var body any
		if err := json.Unmarshal(req.JSONBody, &body); err != nil {
			return nil, fmt.Errorf("%w: json_body: %w", core.ErrInvalidRequest, err)
		}
		opts.JSONBody = body
	}
	return opts, nil
}

// FetchHandler serves POST /v1/fetch.
type FetchHandler struct {
	Fetcher Fetcher
}

func (h *FetchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFetchRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid fetch request body"))
		return
	}

	opts, err := req.Options()
	if err != nil {
		respondWithError(w, r, apperrors.FromScrapeError(r.Context(), err))
		return
	}

	result, err := h.Fetcher.Request(r.Context(), req.Method, req.URL, opts)
	if err != nil {
		respondWithError(w, r, apperrors.FromScrapeError(r.Context(), err))
		return
	}

	writeJSON(w, http.StatusOK, output.NewResultView(result, req.Text))
}
