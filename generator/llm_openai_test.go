package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jitender-insights/AI-FlowChart-Generator/apperr"
)

func chatCompletionBody(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
}

func newTestLLM(t *testing.T, url string) *OpenAILLM {
	t.Helper()
	llm, err := NewOpenAILLMFromConfig(&LLMSettings{
		Provider:   "openai",
		Model:      "test-model",
		APIKey:     "test-key",
		BaseURL:    url + "/v1/",
		MaxRetries: 2,
		RetryWait:  time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	return llm
}

func TestOpenAILLMComplete(t *testing.T) {
	var gotAuth string
	var gotBody struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletionBody("```dot\ndigraph G {a->b}\n```"))
	}))
	defer srv.Close()

	out, err := newTestLLM(t, srv.URL).Complete(context.Background(), BuildPrompt("a then b"))
	require.NoError(t, err)
	assert.Equal(t, "```dot\ndigraph G {a->b}\n```", out)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "test-model", gotBody.Model)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Contains(t, gotBody.Messages[1].Content, "a then b")
}

func TestOpenAILLMRetriesTransientStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletionBody("digraph G {}"))
	}))
	defer srv.Close()

	out, err := newTestLLM(t, srv.URL).Complete(context.Background(), BuildPrompt("x"))
	require.NoError(t, err)
	assert.Equal(t, "digraph G {}", out)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestOpenAILLMClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   apperr.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, apperr.KindCompletionPermanent},
		{"bad request", http.StatusBadRequest, apperr.KindCompletionPermanent},
		{"rate limited", http.StatusTooManyRequests, apperr.KindCompletionTransient},
		{"server error", http.StatusInternalServerError, apperr.KindCompletionTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"test"}}`))
			}))
			defer srv.Close()

			_, err := newTestLLM(t, srv.URL).Complete(context.Background(), BuildPrompt("x"))
			require.Error(t, err)
			assert.Equal(t, tt.want, apperr.KindOf(err))
		})
	}
}

func TestOpenAILLMEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestLLM(t, srv.URL).Complete(context.Background(), BuildPrompt("x"))
	assert.Equal(t, apperr.KindCompletionTransient, apperr.KindOf(err))
}

func TestNewOpenAILLMRequiresKeyAndModel(t *testing.T) {
	_, err := NewOpenAILLMFromConfig(nil, nil)
	require.Error(t, err)

	_, err = NewOpenAILLMFromConfig(&LLMSettings{Model: "m"}, nil)
	assert.Equal(t, apperr.KindCompletionPermanent, apperr.KindOf(err))

	_, err = NewOpenAILLMFromConfig(&LLMSettings{APIKey: "k"}, nil)
	assert.Equal(t, apperr.KindCompletionPermanent, apperr.KindOf(err))
}

func TestClassifyCompletionErrorTimeout(t *testing.T) {
	err := ClassifyCompletionError(context.DeadlineExceeded)
	assert.Equal(t, apperr.KindCompletionTransient, apperr.KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, ClassifyCompletionError(nil))
}

func TestClassifyCompletionErrorCanceled(t *testing.T) {
	err := ClassifyCompletionError(context.Canceled)
	assert.Equal(t, apperr.KindUnknown, apperr.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}
