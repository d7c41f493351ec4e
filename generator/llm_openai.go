package generator

import (
	"context"
	"errors"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/jitender-insights/AI-FlowChart-Generator/apperr"
)

// OpenAILLM implements LLMClient with the official openai-go SDK (chat completions). It also
// serves OpenAI-compatible endpoints such as DeepSeek and Gemini.
type OpenAILLM struct {
	Model       string
	Temperature float64
	client      openai.Client
}

// NewOpenAILLMFromConfig validates cfg and builds a client whose transport retries transient
// failures with backoff.
func NewOpenAILLMFromConfig(cfg *LLMSettings, logger *zap.Logger) (*OpenAILLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.APIKey == "" {
		return nil, apperr.New(apperr.KindCompletionPermanent, "llm", "api key missing; set LLM_API_KEY")
	}
	if cfg.Model == "" {
		return nil, apperr.New(apperr.KindCompletionPermanent, "llm", "llm model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(newRetryingHTTPClient(cfg, logger)),
		// Retries happen in the transport.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAILLM{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		client:      openai.NewClient(opts...),
	}, nil
}

func (o *OpenAILLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	var msgs []openai.ChatCompletionMessageParamUnion
	if prompt.System != "" {
		msgs = append(msgs, openai.SystemMessage(prompt.System))
	}
	msgs = append(msgs, openai.UserMessage(prompt.User))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.Model),
		Messages: msgs,
	}
	if o.Temperature > 0 {
		params.Temperature = openai.Float(o.Temperature)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", ClassifyCompletionError(err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.New(apperr.KindCompletionTransient, "complete", "empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func newRetryingHTTPClient(cfg *LLMSettings, logger *zap.Logger) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	if cfg.RetryWait > 0 {
		rc.RetryWaitMin = cfg.RetryWait
		rc.RetryWaitMax = 8 * cfg.RetryWait
	}
	rc.Logger = nil
	// Hand the last response back so the SDK can read the status code.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logger.Warn("retrying completion request",
				zap.String("provider", cfg.Provider),
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt),
			)
		}
	}
	return rc.StandardClient()
}
