package generator

import (
	"context"
	"errors"
	"strings"

	"github.com/jitender-insights/AI-FlowChart-Generator/apperr"
)

// Agent turns a process description into a Flowchart: template, completion, sanitize.
type Agent struct {
	llm LLMClient
}

func NewAgent(llm LLMClient) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	return &Agent{llm: llm}, nil
}

// ValidateInput rejects descriptions that are empty or only whitespace.
func ValidateInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return apperr.New(apperr.KindValidation, "generate", "please enter a valid description")
	}
	return nil
}

// Generate validates input before any call to the LLM.
func (a *Agent) Generate(ctx context.Context, input string) (Flowchart, error) {
	if err := ValidateInput(input); err != nil {
		return Flowchart{}, err
	}

	raw, err := a.llm.Complete(ctx, BuildPrompt(input))
	if err != nil {
		return Flowchart{}, ClassifyCompletionError(err)
	}
	return PostProcess(raw)
}
