package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticCompleter(t *testing.T) {
	c := NewStaticCompleter("first", "second")
	ctx := context.Background()

	for _, want := range []string{"first", "second", "second"} {
		got, err := c.Complete(ctx, "sys", "user")
		require.NoError(t, err)
		assert.Equal(t, want, got.Text)
		assert.Equal(t, "static", got.Model)
	}
	assert.Len(t, c.Calls(), 3)
	assert.Equal(t, Request{SystemPrompt: "sys", UserPrompt: "user"}, c.Calls()[0])
}

func TestStaticCompleterNoReplies(t *testing.T) {
	_, err := NewStaticCompleter().Complete(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestStaticCompleterCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStaticCompleter("x").Complete(ctx, "", "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStaticCompleterConcurrent(t *testing.T) {
	c := NewStaticCompleter("ok")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Complete(context.Background(), "s", "u")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, c.Calls(), 20)
}

func TestFuncCompleter(t *testing.T) {
	var c Completer = FuncCompleter(func(ctx context.Context, system, user string) (*Completion, error) {
		return &Completion{Text: system + "|" + user}, nil
	})
	got, err := c.Complete(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "a|b", got.Text)
}

func TestNewOpenAICompleterRequiresKey(t *testing.T) {
	_, err := NewOpenAICompleter(OpenAIConfig{})
	assert.Error(t, err)
}

func fakeChatServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			data, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(data, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAICompleter(t *testing.T) {
	var seen map[string]any
	srv := fakeChatServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1700000000,
		"model": "gpt-4o-mini-2024-07-18",
		"choices": [{"index": 0, "finish_reason": "stop",
			"message": {"role": "assistant", "content": "{\"say\":\"hi\"}"}}],
		"usage": {"prompt_tokens": 321, "completion_tokens": 45, "total_tokens": 366}
	}`, &seen)

	c, err := NewOpenAICompleter(OpenAIConfig{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/",
		Model:       "gpt-4o-mini",
		Temperature: 0.3,
		MaxTokens:   200,
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", c.Model())

	got, err := c.Complete(context.Background(), "system prompt", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"say":"hi"}`, got.Text)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", got.Model)
	assert.Equal(t, int64(321), got.PromptTokens)
	assert.Equal(t, int64(45), got.CompletionTokens)

	assert.Equal(t, "gpt-4o-mini", seen["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, seen["response_format"])
	assert.Equal(t, float64(200), seen["max_tokens"])
	messages, ok := seen["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user prompt", messages[1].(map[string]any)["content"])
}

func TestOpenAICompleterNoChoices(t *testing.T) {
	srv := fakeChatServer(t, http.StatusOK, `{"id":"x","model":"m","choices":[]}`, nil)
	c, err := NewOpenAICompleter(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOpenAICompleterHTTPError(t *testing.T) {
	srv := fakeChatServer(t, http.StatusInternalServerError,
		`{"error":{"message":"boom","type":"server_error"}}`, nil)
	c, err := NewOpenAICompleter(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completion error")
}
