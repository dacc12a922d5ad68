package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/josinaldojr/gemini-graph-rag/internal/rag"
	"github.com/mudler/xlog"
)

// Engine is what the handlers need from the RAG engine.
type Engine interface {
	Insert(ctx context.Context, text string) error
	Query(ctx context.Context, query string, param rag.QueryParam) (string, error)
}

const backendLabel = "Gemini"

// TextData is the /insert payload.
type TextData struct {
	Text *string `json:"text"`
}

// QueryData is the /query payload. An omitted mode defaults to hybrid; any
// string is handed to the engine as is and null is rejected.
type QueryData struct {
	Query *string      `json:"query"`
	Mode  presentField `json:"mode"`
}

// presentField records whether a JSON field was sent at all, which a plain
// pointer cannot tell apart from an explicit null.
type presentField struct {
	Set   bool
	Value *string
}

func (p *presentField) UnmarshalJSON(b []byte) error {
	p.Set = true
	if string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, &p.Value)
}

type Handler struct {
	engine Engine
}

func NewHandler(engine Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": backendLabel,
	})
}

func (h *Handler) Insert(w http.ResponseWriter, r *http.Request) {
	var req TextData
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid json body: "+err.Error())
		return
	}
	if req.Text == nil {
		writeDetail(w, http.StatusUnprocessableEntity, "field required: text")
		return
	}

	if err := h.engine.Insert(r.Context(), *req.Text); err != nil {
		xlog.Error("insert failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Text inserted",
	})
}

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryData
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid json body: "+err.Error())
		return
	}
	if req.Query == nil {
		writeDetail(w, http.StatusUnprocessableEntity, "field required: query")
		return
	}

	param := rag.DefaultQueryParam()
	if req.Mode.Set {
		if req.Mode.Value == nil {
			writeDetail(w, http.StatusUnprocessableEntity, "field must be a string: mode")
			return
		}
		param.Mode = rag.QueryMode(*req.Mode.Value)
	}

	result, err := h.engine.Query(r.Context(), *req.Query, param)
	if err != nil {
		xlog.Error("query failed", "mode", string(param.Mode), "error", err)
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"result": result})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
