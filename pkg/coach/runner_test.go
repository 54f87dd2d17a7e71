package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/realtime-ai/realtime-coach/pkg/engine"
	"github.com/realtime-ai/realtime-coach/pkg/llm"
	"github.com/realtime-ai/realtime-coach/pkg/memory"
	"github.com/realtime-ai/realtime-coach/pkg/trace"
)

func turnInput(t *testing.T, callID string) *engine.EngineInput {
	t.Helper()
	in, err := engine.BuildInput(engine.CallModeMock, engine.TurnState{
		OrgID:         uuid.NewString(),
		CallID:        callID,
		CallType:      "discovery",
		GuidanceLevel: "standard",
		CompanyBrief: engine.CompanyBrief{
			CompanyName:    "Acme",
			WhatWeSell:     "Scheduling software",
			TargetCustomer: "Dental clinics",
		},
		CurrentStage:          "discovery",
		TranscriptWindow:      []engine.TranscriptTurn{{Speaker: engine.SpeakerProspect, Text: "We use paper."}},
		ProspectLastUtterance: "We use paper.",
		CoachMemory:           memory.Empty(),
	})
	require.NoError(t, err)
	return in
}

func reply(say, question string, valueProps ...string) string {
	if valueProps == nil {
		valueProps = []string{}
	}
	data, _ := json.Marshal(map[string]any{
		"say":    say,
		"intent": "discovery",
		"reason": "keep them talking",
		"nudges": []string{"pause after asking"},
		"ask":    question,
		"used_updates": map[string]any{
			"value_props_used":         valueProps,
			"differentiators_used":     []string{},
			"objection_responses_used": []string{},
			"questions_asked":          []string{question},
		},
	})
	return "```json\n" + string(data) + "\n```"
}

func TestTurnMergesMemory(t *testing.T) {
	completer := llm.NewStaticCompleter(
		reply("How do patients book today?", "How do patients book today?", "online booking"),
		reply("What does a no-show cost you?", "What does a no-show cost you?", "online booking", "reminders"),
	)
	r := NewRunner(completer, Config{}, nil)
	callID := uuid.NewString()
	in := turnInput(t, callID)

	first, err := r.Turn(context.Background(), callID, in)
	require.NoError(t, err)
	assert.False(t, first.UsedFallback)
	assert.Equal(t, "static", first.Model)
	assert.Equal(t, []string{"online booking"}, first.Memory.UsedValueProps.Items())

	second, err := r.Turn(context.Background(), callID, in)
	require.NoError(t, err)
	assert.Equal(t, []string{"online booking", "reminders"}, second.Memory.UsedValueProps.Items())
	assert.Equal(t, []string{"How do patients book today?", "What does a no-show cost you?"},
		second.Memory.LastPrimarySuggestions.Items())

	// The second prompt carried the memory produced by the first turn.
	calls := completer.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, DefaultSystemPrompt, calls[1].SystemPrompt)
	assert.Contains(t, calls[1].UserPrompt, "online booking")
	assert.NotContains(t, calls[0].UserPrompt, "online booking")

	mem, ok := r.Memory(callID)
	require.True(t, ok)
	assert.Equal(t, second.Memory, mem)
}

func TestTurnFallsBack(t *testing.T) {
	tests := []struct {
		name      string
		completer llm.Completer
		cause     error
	}{
		{"garbage text", llm.NewStaticCompleter("I'd suggest asking about budget."), engine.ErrMalformedModelOutput},
		{"schema violation", llm.NewStaticCompleter(`{"say":"hi","intent":"x","reason":"y","nudges":[],"used_updates":{}}`), engine.ErrSchemaValidation},
		{"model error", llm.FuncCompleter(func(context.Context, string, string) (*llm.Completion, error) {
			return nil, errors.New("rate limited")
		}), nil},
		{"nil completion", llm.FuncCompleter(func(context.Context, string, string) (*llm.Completion, error) {
			return nil, nil
		}), llm.ErrEmptyCompletion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner(tt.completer, Config{}, nil)
			callID := uuid.NewString()

			res, err := r.Turn(context.Background(), callID, turnInput(t, callID))
			require.NoError(t, err)
			assert.True(t, res.UsedFallback)
			require.Error(t, res.FallbackCause)
			if tt.cause != nil {
				assert.ErrorIs(t, res.FallbackCause, tt.cause)
			}
			assert.Equal(t, engine.SafeFallbackResponse(), res.Response)

			// A fallback records its line but never marks content as used.
			assert.Equal(t, 0, res.Memory.UsedValueProps.Len())
			assert.Equal(t, 0, res.Memory.QuestionsAsked.Len())
			assert.Equal(t, []string{res.Response.Say}, res.Memory.LastPrimarySuggestions.Items())
		})
	}
}

func TestTurnTimeout(t *testing.T) {
	blocking := llm.FuncCompleter(func(ctx context.Context, _, _ string) (*llm.Completion, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r := NewRunner(blocking, Config{LLMTimeout: 20 * time.Millisecond}, nil)
	callID := uuid.NewString()

	res, err := r.Turn(context.Background(), callID, turnInput(t, callID))
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.ErrorIs(t, res.FallbackCause, context.DeadlineExceeded)
}

func TestTurnRejectsBadInput(t *testing.T) {
	var called atomic.Int32
	completer := llm.FuncCompleter(func(context.Context, string, string) (*llm.Completion, error) {
		called.Add(1)
		return &llm.Completion{Text: reply("hi", "q")}, nil
	})
	r := NewRunner(completer, Config{}, nil)
	callID := uuid.NewString()

	_, err := r.Turn(context.Background(), callID, &engine.EngineInput{CallID: callID})
	assert.ErrorIs(t, err, engine.ErrUnvalidatedInput)

	_, err = r.Turn(context.Background(), callID, nil)
	assert.ErrorIs(t, err, engine.ErrUnvalidatedInput)

	_, err = r.Turn(context.Background(), uuid.NewString(), turnInput(t, callID))
	assert.ErrorIs(t, err, ErrCallIDMismatch)

	assert.Equal(t, int32(0), called.Load())
	assert.Empty(t, r.ActiveCalls())
}

func TestTurnsOnOneCallAreSerialized(t *testing.T) {
	var inFlight, maxInFlight, n atomic.Int32
	completer := llm.FuncCompleter(func(ctx context.Context, _, _ string) (*llm.Completion, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		i := n.Add(1)
		q := fmt.Sprintf("question %d?", i)
		return &llm.Completion{Text: reply(q, q), Model: "fake"}, nil
	})
	r := NewRunner(completer, Config{}, nil)
	callID := uuid.NewString()
	in := turnInput(t, callID)

	const turns = 12
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Turn(context.Background(), callID, in)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
	mem, ok := r.Memory(callID)
	require.True(t, ok)
	// No merge was lost.
	assert.Equal(t, turns, mem.QuestionsAsked.Len())
	assert.Equal(t, memory.PrimarySuggestionLimit, mem.LastPrimarySuggestions.Len())
	last := mem.LastPrimarySuggestions.Items()
	assert.Equal(t, fmt.Sprintf("question %d?", turns), last[len(last)-1])
}

func TestDifferentCallsRunInParallel(t *testing.T) {
	var barrier sync.WaitGroup
	barrier.Add(2)
	completer := llm.FuncCompleter(func(ctx context.Context, _, _ string) (*llm.Completion, error) {
		barrier.Done()
		done := make(chan struct{})
		go func() { barrier.Wait(); close(done) }()
		select {
		case <-done:
			return &llm.Completion{Text: reply("ok?", "ok?")}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	r := NewRunner(completer, Config{LLMTimeout: 2 * time.Second}, nil)

	ids := []string{uuid.NewString(), uuid.NewString()}
	inputs := []*engine.EngineInput{turnInput(t, ids[0]), turnInput(t, ids[1])}
	results := make([]*TurnResult, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Turn(context.Background(), id, inputs[i])
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	for _, res := range results {
		require.NotNil(t, res)
		assert.False(t, res.UsedFallback, "cause: %v", res.FallbackCause)
	}
	assert.ElementsMatch(t, ids, r.ActiveCalls())
}

func TestEndCall(t *testing.T) {
	r := NewRunner(llm.NewStaticCompleter(reply("Who else is involved?", "Who else is involved?")), Config{}, nil)
	callID := uuid.NewString()

	_, ok := r.EndCall(callID)
	assert.False(t, ok)

	_, err := r.Turn(context.Background(), callID, turnInput(t, callID))
	require.NoError(t, err)

	final, ok := r.EndCall(callID)
	require.True(t, ok)
	assert.Equal(t, []string{"Who else is involved?"}, final.QuestionsAsked.Items())
	assert.Empty(t, r.ActiveCalls())

	_, ok = r.Memory(callID)
	assert.False(t, ok)

	// Reusing the id starts over.
	res, err := r.Turn(context.Background(), callID, turnInput(t, callID))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Memory.LastPrimarySuggestions.Len())
}

func TestCustomSystemPrompt(t *testing.T) {
	completer := llm.NewStaticCompleter(reply("hi?", "hi?"))
	r := NewRunner(completer, Config{SystemPrompt: "Be brief."}, nil)
	callID := uuid.NewString()

	_, err := r.Turn(context.Background(), callID, turnInput(t, callID))
	require.NoError(t, err)
	assert.Equal(t, "Be brief.", completer.Calls()[0].SystemPrompt)
	assert.True(t, strings.HasPrefix(completer.Calls()[0].UserPrompt, "{"))
}

func TestSweepIdle(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	r := NewRunner(llm.NewStaticCompleter(reply("Who signs off?", "Who signs off?")), Config{IdleTimeout: time.Minute}, nil)
	r.now = func() time.Time { return clock }

	stale, busy := uuid.NewString(), uuid.NewString()
	for _, id := range []string{stale, busy} {
		_, err := r.Turn(context.Background(), id, turnInput(t, id))
		require.NoError(t, err)
	}

	clock = clock.Add(30 * time.Second)
	_, err := r.Turn(context.Background(), busy, turnInput(t, busy))
	require.NoError(t, err)

	clock = clock.Add(45 * time.Second)
	assert.Equal(t, []string{stale}, r.SweepIdle())
	assert.Equal(t, []string{busy}, r.ActiveCalls())
	_, ok := r.Memory(stale)
	assert.False(t, ok)

	// A swept id starts over like an ended one.
	res, err := r.Turn(context.Background(), stale, turnInput(t, stale))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Memory.LastPrimarySuggestions.Len())
	assert.Empty(t, r.SweepIdle())
}

func TestSweepIdleDisabled(t *testing.T) {
	r := NewRunner(llm.NewStaticCompleter(reply("hi?", "hi?")), Config{}, nil)
	r.now = func() time.Time { return time.Unix(0, 0) }
	callID := uuid.NewString()
	_, err := r.Turn(context.Background(), callID, turnInput(t, callID))
	require.NoError(t, err)

	r.now = time.Now
	assert.Nil(t, r.SweepIdle())
	assert.Equal(t, []string{callID}, r.ActiveCalls())
}

func TestFallbackSpanCountsValidationIssues(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	cfg := trace.DefaultConfig()
	cfg.Exporter = exporter
	require.NoError(t, trace.Initialize(context.Background(), cfg))
	t.Cleanup(func() { _ = trace.Shutdown(context.Background()) })

	var doc map[string]any
	raw, err := engine.ExtractJSON(reply("hi?", "hi?"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &doc))
	doc["nudges"] = []string{"a", "b", "c", "d"}
	doc["mood"] = "upbeat"
	bad, err := json.Marshal(doc)
	require.NoError(t, err)

	r := NewRunner(llm.NewStaticCompleter(string(bad)), Config{}, nil)
	callID := uuid.NewString()
	res, err := r.Turn(context.Background(), callID, turnInput(t, callID))
	require.NoError(t, err)
	require.True(t, res.UsedFallback)

	byName := map[string]tracetest.SpanStub{}
	for _, s := range exporter.GetSpans() {
		byName[s.Name] = s
	}

	parse, ok := byName["coach.parse_response"]
	require.True(t, ok, "spans: %v", byName)
	assert.Equal(t, codes.Error, parse.Status.Code)

	turn, ok := byName["coach.turn"]
	require.True(t, ok)
	var issues int64 = -1
	for _, kv := range turn.Attributes {
		if string(kv.Key) == trace.AttrValidationIssues {
			issues = kv.Value.AsInt64()
		}
	}
	assert.Equal(t, int64(2), issues)
}
