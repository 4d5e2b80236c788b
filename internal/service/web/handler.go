package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"statscrape/internal/egress"
	"statscrape/internal/extract"
	"statscrape/internal/shared/logger"
	"statscrape/internal/shared/scrapeerr"
	"statscrape/relaypool/model"
)

// RelayPool is the part of the relay pool manager the API exposes.
type RelayPool interface {
	AllRelays() []model.Relay
	HealthyRelays() []egress.Path
	ImportRelays(entries []string, protocol string) (int, error)
	TriggerValidation(ids []string) error
	DeleteRelays(ids []string) (int, error)
}

// Handler serves the extraction and relay pool API. pool may be nil when
// the relay pool is disabled.
type Handler struct {
	getter extract.Getter
	pool   RelayPool
}

func NewHandler(getter extract.Getter, pool RelayPool) *Handler {
	return &Handler{getter: getter, pool: pool}
}

// FieldRequest describes one SingleText extraction.
// Mode is "" (first, or Index leniently), "at" (Index strictly), "slice"
// (From/To, then Sep or Index) or "join" (Sep over all matches).
type FieldRequest struct {
	XPath string  `json:"xpath"`
	Mode  string  `json:"mode,omitempty"`
	Index int     `json:"index,omitempty"`
	From  *int    `json:"from,omitempty"`
	To    *int    `json:"to,omitempty"`
	Sep   *string `json:"sep,omitempty"`
}

// ListRequest describes one ListText extraction.
type ListRequest struct {
	XPath     string `json:"xpath"`
	KeepEmpty bool   `json:"keep_empty,omitempty"`
}

// PaginationRequest asks for LastPageNumber under Base.
type PaginationRequest struct {
	Base string `json:"base"`
}

// ExtractRequest is the body of POST /api/extract.
type ExtractRequest struct {
	URL        string                  `json:"url"`
	Override   string                  `json:"override,omitempty"`
	Assert     string                  `json:"assert,omitempty"`
	Fields     map[string]FieldRequest `json:"fields,omitempty"`
	Lists      map[string]ListRequest  `json:"lists,omitempty"`
	Pagination *PaginationRequest      `json:"pagination,omitempty"`
}

// ExtractResponse carries nil for fields without a value.
type ExtractResponse struct {
	URL      string              `json:"url"`
	Fields   map[string]*string  `json:"fields"`
	Lists    map[string][]string `json:"lists"`
	LastPage *int                `json:"last_page,omitempty"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (f FieldRequest) selection() (extract.Selection, error) {
	switch f.Mode {
	case "", "pos":
		return extract.Pos(f.Index), nil
	case "at":
		return extract.At(f.Index), nil
	case "join":
		sep := ""
		if f.Sep != nil {
			sep = *f.Sep
		}
		return extract.Join(sep), nil
	case "slice":
		var sel extract.Selection
		switch {
		case f.From != nil && f.To != nil:
			sel = extract.Range(*f.From, *f.To)
		case f.From != nil:
			sel = extract.From(*f.From)
		case f.To != nil:
			sel = extract.To(*f.To)
		default:
			return extract.Selection{}, fmt.Errorf("slice mode needs from or to")
		}
		if f.Sep != nil {
			return sel.Join(*f.Sep), nil
		}
		return sel.Pos(f.Index), nil
	default:
		return extract.Selection{}, fmt.Errorf("unknown mode %q", f.Mode)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		l := logger.WithComponent("Web")
		l.Warn().Err(err).Msg("Failed to write JSON response.")
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// writeError maps a classified error to its status code. Malformed
// expressions come from the caller, so they are a 400.
func writeError(w http.ResponseWriter, err error) {
	status := scrapeerr.StatusOf(err)
	if scrapeerr.KindOf(err) == scrapeerr.InvalidQuery {
		status = http.StatusBadRequest
	}
	detail := err.Error()
	var se *scrapeerr.Error
	if errors.As(err, &se) {
		detail = se.Detail
	}
	writeDetail(w, status, detail)
}

// HandleExtract 处理 POST /api/extract 请求
func (h *Handler) HandleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if req.URL == "" {
		writeDetail(w, http.StatusBadRequest, "url is required")
		return
	}

	selections := make(map[string]extract.Selection, len(req.Fields))
	for name, f := range req.Fields {
		sel, err := f.selection()
		if err != nil {
			writeDetail(w, http.StatusBadRequest, fmt.Sprintf("field %q: %v", name, err))
			return
		}
		selections[name] = sel
	}

	p, err := extract.LoadWithOverride(r.Context(), h.getter, req.URL, req.Override)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Assert != "" {
		if err := p.AssertFound(req.Assert); err != nil {
			writeError(w, err)
			return
		}
	}

	resp := ExtractResponse{
		URL:    req.URL,
		Fields: make(map[string]*string, len(req.Fields)),
		Lists:  make(map[string][]string, len(req.Lists)),
	}
	for name, f := range req.Fields {
		value, ok, err := p.SingleText(f.XPath, selections[name])
		if err != nil {
			writeError(w, err)
			return
		}
		if ok {
			v := value
			resp.Fields[name] = &v
		} else {
			resp.Fields[name] = nil
		}
	}
	for name, l := range req.Lists {
		values, err := p.ListText(l.XPath, !l.KeepEmpty)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Lists[name] = values
	}
	if req.Pagination != nil {
		last, err := p.LastPageNumber(req.Pagination.Base)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.LastPage = &last
	}

	writeJSON(w, http.StatusOK, resp)
}

type relaysResponse struct {
	Relays  []model.Relay `json:"relays"`
	Healthy int           `json:"healthy"`
}

type importRequest struct {
	Relays   []string `json:"relays"`
	Protocol string   `json:"protocol"`
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) poolEnabled(w http.ResponseWriter) bool {
	if h.pool == nil {
		writeDetail(w, http.StatusServiceUnavailable, "relay pool is disabled")
		return false
	}
	return true
}

// HandleRelays 处理 GET /api/relays 请求
func (h *Handler) HandleRelays(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.poolEnabled(w) {
		return
	}
	writeJSON(w, http.StatusOK, relaysResponse{
		Relays:  h.pool.AllRelays(),
		Healthy: len(h.pool.HealthyRelays()),
	})
}

// HandleImportRelays 处理 POST /api/relays/import 请求
func (h *Handler) HandleImportRelays(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.poolEnabled(w) {
		return
	}
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	added, err := h.pool.ImportRelays(req.Relays, req.Protocol)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"added": added})
}

// HandleValidateRelays 处理 POST /api/relays/validate 请求
func (h *Handler) HandleValidateRelays(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.poolEnabled(w) {
		return
	}
	var req idsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if err := h.pool.TriggerValidation(req.IDs); err != nil {
		writeDetail(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"scheduled": len(req.IDs)})
}

// HandleDeleteRelays 处理 POST /api/relays/delete 请求
func (h *Handler) HandleDeleteRelays(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.poolEnabled(w) {
		return
	}
	var req idsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	deleted, err := h.pool.DeleteRelays(req.IDs)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Failed to delete relays: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}
