package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go"

	"github.com/jitender-insights/AI-FlowChart-Generator/apperr"
)

// LLMClient abstracts the completion service so it can be swapped or mocked.
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMSettings is the provider configuration handed to concrete clients.
type LLMSettings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxRetries  int
	RetryWait   time.Duration
}

// GeminiBaseURL is Google's OpenAI-compatible endpoint.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// Default models per provider.
var DefaultModels = map[string]string{
	"openai":   "gpt-4o-mini",
	"deepseek": "deepseek-chat",
	"gemini":   "gemini-2.0-flash",
}

// ClassifyCompletionError sorts a completion failure into transient and permanent causes.
// Errors that are already classified pass through.
func ClassifyCompletionError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	// The caller gave up; the service did nothing wrong.
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("complete: %w", err)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch code := apiErr.StatusCode; {
		case code == http.StatusTooManyRequests,
			code == http.StatusRequestTimeout,
			code == http.StatusConflict,
			code >= http.StatusInternalServerError:
			return apperr.Wrap(apperr.KindCompletionTransient, "complete", err, http.StatusText(code))
		default:
			return apperr.Wrap(apperr.KindCompletionPermanent, "complete", err, http.StatusText(code))
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindCompletionTransient, "complete", err, "completion timed out")
	}
	// Network failures.
	return apperr.Wrap(apperr.KindCompletionTransient, "complete", err, "completion request failed")
}
