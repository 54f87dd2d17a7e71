// Package coach runs coaching turns. It owns the per-call CoachMemory and
// guarantees that turns of one call happen one at a time while different
// calls proceed in parallel.
package coach

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/realtime-ai/realtime-coach/pkg/engine"
	"github.com/realtime-ai/realtime-coach/pkg/llm"
	"github.com/realtime-ai/realtime-coach/pkg/logger"
	"github.com/realtime-ai/realtime-coach/pkg/memory"
	"github.com/realtime-ai/realtime-coach/pkg/trace"
)

var (
	// ErrCallEnded is returned for turns on a call closed by EndCall.
	ErrCallEnded = errors.New("call has ended")
	// ErrCallIDMismatch is returned when the turn input belongs to another call.
	ErrCallIDMismatch = errors.New("input callId does not match call")
)

const defaultLLMTimeout = 8 * time.Second

// Config configures a Runner.
type Config struct {
	// SystemPrompt defaults to DefaultSystemPrompt.
	SystemPrompt string
	// LLMTimeout bounds each model call. Defaults to 8s.
	LLMTimeout time.Duration
	// Provider labels llm.request spans.
	Provider string
	// IdleTimeout is how long a call may go without a turn before
	// SweepIdle discards it. Zero disables sweeping.
	IdleTimeout time.Duration
}

// TurnResult is the outcome of one coaching turn.
type TurnResult struct {
	Response         *engine.EngineResponse
	Memory           memory.CoachMemory
	UsedFallback     bool
	FallbackCause    error
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	Duration         time.Duration
}

type callState struct {
	mu       sync.Mutex
	memory   memory.CoachMemory
	seeded   bool
	ended    bool
	turns    int
	lastTurn time.Time
}

// Runner executes coaching turns against a Completer.
type Runner struct {
	llm    llm.Completer
	config Config
	log    *logger.Logger

	mu    sync.Mutex
	calls map[string]*callState
	now   func() time.Time
}

// NewRunner creates a runner. log may be nil.
func NewRunner(completer llm.Completer, config Config, log *logger.Logger) *Runner {
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}
	if config.LLMTimeout <= 0 {
		config.LLMTimeout = defaultLLMTimeout
	}
	if config.Provider == "" {
		config.Provider = "openai"
	}
	return &Runner{
		llm:    completer,
		config: config,
		log:    logger.OrNop(log).Named("coach"),
		calls:  make(map[string]*callState),
		now:    time.Now,
	}
}

func (r *Runner) call(callID string) *callState {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.calls[callID]
	if !ok {
		st = &callState{lastTurn: r.now()}
		r.calls[callID] = st
	}
	return st
}

// Turn runs one coaching turn for callID. in must come from the validator
// (engine.ValidateInput or engine.BuildInput); anything else is rejected
// before the model is called.
//
// The first turn of a call seeds the call's memory from in.CoachMemory;
// later turns use the stored memory. Model, recovery and validation failures
// never fail the turn: the safe fallback is returned with UsedFallback set.
func (r *Runner) Turn(ctx context.Context, callID string, in *engine.EngineInput) (*TurnResult, error) {
	if !in.Validated() {
		return nil, engine.ErrUnvalidatedInput
	}
	if callID != in.CallID {
		return nil, fmt.Errorf("%w: %s != %s", ErrCallIDMismatch, in.CallID, callID)
	}

	st := r.call(callID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.ended {
		return nil, ErrCallEnded
	}
	if !st.seeded {
		st.memory = in.CoachMemory.Clone()
		st.seeded = true
	}

	start := time.Now()
	ctx, span := trace.InstrumentCoachTurn(ctx, callID, string(in.CallMode), in.CurrentStage)
	defer span.End()

	log := r.log.With("call_id", callID, "call_mode", in.CallMode, "turn", st.turns+1)

	result := &TurnResult{}
	resp, cause := r.complete(ctx, in.WithMemory(st.memory), result)
	if cause != nil {
		resp = engine.SafeFallbackResponse()
		result.UsedFallback = true
		result.FallbackCause = cause
		var verr *engine.ValidationError
		if errors.As(cause, &verr) {
			trace.RecordValidationIssues(span, len(verr.Issues))
		}
		log.Warn("coaching turn fell back", append(trace.LogFields(ctx), "error", cause)...)
	}

	st.memory = memory.Merge(st.memory, resp.UsedUpdates, resp.Say)
	st.turns++
	st.lastTurn = r.now()

	result.Response = resp
	result.Memory = st.memory.Clone()
	result.Duration = time.Since(start)

	trace.RecordTurnOutcome(span, result.UsedFallback, cause, memorySize(st.memory))
	log.Debug("coaching turn complete",
		"intent", resp.Intent,
		"fallback", result.UsedFallback,
		"model", result.Model,
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}

// complete calls the model and returns its validated response, or the
// reason it could not.
func (r *Runner) complete(ctx context.Context, in *engine.EngineInput, result *TurnResult) (*engine.EngineResponse, error) {
	userPrompt, err := renderUserPrompt(in)
	if err != nil {
		return nil, err
	}

	llmCtx, cancel := context.WithTimeout(ctx, r.config.LLMTimeout)
	defer cancel()
	llmCtx, span := trace.InstrumentLLMRequest(llmCtx, r.config.Provider, "")
	defer span.End()

	completion, err := r.llm.Complete(llmCtx, r.config.SystemPrompt, userPrompt)
	if err != nil {
		trace.RecordError(span, err)
		return nil, fmt.Errorf("llm: %w", err)
	}
	if completion == nil {
		return nil, fmt.Errorf("llm: %w", llm.ErrEmptyCompletion)
	}
	result.Model = completion.Model
	result.PromptTokens = completion.PromptTokens
	result.CompletionTokens = completion.CompletionTokens
	trace.RecordLLMUsage(span, completion.Model, completion.PromptTokens, completion.CompletionTokens)

	var resp *engine.EngineResponse
	err = trace.WithSpan(ctx, "coach.parse_response", func(context.Context) error {
		var perr error
		resp, perr = engine.ParseModelResponse(completion.Text)
		return perr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Memory returns a copy of the call's current memory.
func (r *Runner) Memory(callID string) (memory.CoachMemory, bool) {
	r.mu.Lock()
	st, ok := r.calls[callID]
	r.mu.Unlock()
	if !ok {
		return memory.CoachMemory{}, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.ended || !st.seeded {
		return memory.CoachMemory{}, false
	}
	return st.memory.Clone(), true
}

// EndCall discards the call and returns its final memory. A turn in flight
// finishes first; turns already queued on the call fail with ErrCallEnded.
// A later Turn with the same id starts a fresh call.
func (r *Runner) EndCall(callID string) (memory.CoachMemory, bool) {
	r.mu.Lock()
	st, ok := r.calls[callID]
	delete(r.calls, callID)
	r.mu.Unlock()
	if !ok {
		return memory.CoachMemory{}, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.ended = true
	r.log.Info("call ended", "call_id", callID, "turns", st.turns)
	return st.memory, st.seeded
}

// SweepIdle discards calls whose last turn (or creation, if none ran) is
// older than IdleTimeout, as EndCall would, and returns their ids. Calls
// with a turn in progress are left alone.
func (r *Runner) SweepIdle() []string {
	if r.config.IdleTimeout <= 0 {
		return nil
	}
	cutoff := r.now().Add(-r.config.IdleTimeout)

	r.mu.Lock()
	defer r.mu.Unlock()

	var swept []string
	for id, st := range r.calls {
		if !st.mu.TryLock() {
			continue
		}
		if st.lastTurn.Before(cutoff) {
			st.ended = true
			delete(r.calls, id)
			swept = append(swept, id)
		}
		st.mu.Unlock()
	}
	sort.Strings(swept)
	if len(swept) > 0 {
		r.log.Info("idle calls discarded", "count", len(swept), "idle_timeout", r.config.IdleTimeout.String())
	}
	return swept
}

// RunIdleSweeper calls SweepIdle every half IdleTimeout until ctx is done.
func (r *Runner) RunIdleSweeper(ctx context.Context) {
	if r.config.IdleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(r.config.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.SweepIdle()
		}
	}
}

// ActiveCalls lists call ids with state, sorted.
func (r *Runner) ActiveCalls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.calls))
	for id := range r.calls {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func memorySize(m memory.CoachMemory) int {
	return m.UsedValueProps.Len() + m.UsedDifferentiators.Len() +
		m.UsedObjectionResponses.Len() + m.QuestionsAsked.Len()
}
