// Package llm is the coaching brain's view of a language model: one system
// prompt and one user prompt in, one block of text and token usage out.
package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrEmptyCompletion is returned when the model answers with no choices.
var ErrEmptyCompletion = errors.New("no response from model")

// Completion is one model answer.
type Completion struct {
	Text             string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
}

// Completer produces a completion for a system and user prompt. Implementations
// must honor ctx cancellation and be safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error)
}

// FuncCompleter adapts a function to Completer.
type FuncCompleter func(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error)

func (f FuncCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	return f(ctx, systemPrompt, userPrompt)
}

// StaticCompleter answers every request with the next of its replies,
// repeating the last one once they run out. It records the prompts it saw.
type StaticCompleter struct {
	Model   string
	Replies []string

	mu    sync.Mutex
	calls []Request
}

// Request is a prompt pair seen by StaticCompleter.
type Request struct {
	SystemPrompt string
	UserPrompt   string
}

// NewStaticCompleter returns a StaticCompleter answering with replies.
func NewStaticCompleter(replies ...string) *StaticCompleter {
	return &StaticCompleter{Model: "static", Replies: replies}
}

func (s *StaticCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.calls)
	s.calls = append(s.calls, Request{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	if len(s.Replies) == 0 {
		return nil, ErrEmptyCompletion
	}
	text := s.Replies[min(n, len(s.Replies)-1)]
	return &Completion{
		Text:             text,
		Model:            s.Model,
		PromptTokens:     int64(len(systemPrompt)+len(userPrompt)) / 4,
		CompletionTokens: int64(len(text)) / 4,
	}, nil
}

// Calls returns the prompts seen so far.
func (s *StaticCompleter) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.calls...)
}
