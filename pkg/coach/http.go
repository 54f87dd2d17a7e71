package coach

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/realtime-ai/realtime-coach/pkg/engine"
	"github.com/realtime-ai/realtime-coach/pkg/memory"
)

// maxTurnBody bounds a turn request; a full window of 15 lines and 8 chunks
// is far below it.
const maxTurnBody = 1 << 20

// TurnReply is the JSON body returned for a coaching turn.
type TurnReply struct {
	Response         *engine.EngineResponse `json:"response"`
	Memory           memory.CoachMemory     `json:"memory"`
	UsedFallback     bool                   `json:"used_fallback"`
	Model            string                 `json:"model,omitempty"`
	PromptTokens     int64                  `json:"prompt_tokens"`
	CompletionTokens int64                  `json:"completion_tokens"`
	DurationMs       int64                  `json:"duration_ms"`
}

// NewTurnReply converts a TurnResult to its wire form.
func NewTurnReply(res *TurnResult) TurnReply {
	return TurnReply{
		Response:         res.Response,
		Memory:           res.Memory,
		UsedFallback:     res.UsedFallback,
		Model:            res.Model,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		DurationMs:       res.Duration.Milliseconds(),
	}
}

type errorReply struct {
	Error  string         `json:"error"`
	Issues []engine.Issue `json:"issues,omitempty"`
}

// Handler exposes the runner over HTTP:
//
//	POST   /v1/calls/{callID}/turns   run a turn; body is an EngineInput
//	GET    /v1/calls/{callID}/memory  current memory
//	DELETE /v1/calls/{callID}         end the call, returns final memory
//	GET    /v1/calls                  active call ids
func Handler(r *Runner) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/calls/{callID}/turns", r.handleTurn)
	mux.HandleFunc("GET /v1/calls/{callID}/memory", r.handleMemory)
	mux.HandleFunc("DELETE /v1/calls/{callID}", r.handleEndCall)
	mux.HandleFunc("GET /v1/calls", r.handleActiveCalls)
	return mux
}

func (r *Runner) handleTurn(w http.ResponseWriter, req *http.Request) {
	callID := req.PathValue("callID")
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxTurnBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorReply{Error: err.Error()})
		return
	}

	in, err := engine.ValidateInput(body)
	if err != nil {
		reply := errorReply{Error: err.Error()}
		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			reply.Issues = verr.Issues
		}
		writeJSON(w, http.StatusUnprocessableEntity, reply)
		return
	}

	res, err := r.Turn(req.Context(), callID, in)
	switch {
	case errors.Is(err, ErrCallIDMismatch):
		writeJSON(w, http.StatusBadRequest, errorReply{Error: err.Error()})
		return
	case errors.Is(err, ErrCallEnded):
		writeJSON(w, http.StatusConflict, errorReply{Error: err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorReply{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, NewTurnReply(res))
}

func (r *Runner) handleMemory(w http.ResponseWriter, req *http.Request) {
	mem, ok := r.Memory(req.PathValue("callID"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorReply{Error: "unknown call"})
		return
	}
	writeJSON(w, http.StatusOK, mem)
}

func (r *Runner) handleEndCall(w http.ResponseWriter, req *http.Request) {
	mem, ok := r.EndCall(req.PathValue("callID"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorReply{Error: "unknown call"})
		return
	}
	writeJSON(w, http.StatusOK, mem)
}

func (r *Runner) handleActiveCalls(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"calls": r.ActiveCalls()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
