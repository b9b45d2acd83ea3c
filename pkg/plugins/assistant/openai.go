package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"simplebot/pkg/config"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

// responder produces one reply and the id that continues the conversation.
type responder interface {
	Respond(ctx context.Context, previousID string, prompt string) (text string, responseID string, err error)
}

type openAIResponder struct {
	client         osdk.Client
	model          string
	instructions   string
	requestTimeout time.Duration
	log            *slog.Logger
}

func newOpenAIResponder(cfg config.AssistantConfig, log *slog.Logger) (*openAIResponder, error) {
	if log == nil {
		log = slog.Default()
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("assistant.model is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	requestTimeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	return &openAIResponder{
		client:         osdk.NewClient(opts...),
		model:          model,
		instructions:   strings.TrimSpace(cfg.Instructions),
		requestTimeout: requestTimeout,
		log:            log,
	}, nil
}

func (r *openAIResponder) Respond(ctx context.Context, previousID string, prompt string) (string, string, error) {
	if r.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.requestTimeout)
		defer cancel()
	}

	log := r.log.With("operation", "respond", "model", r.model)
	startedAt := time.Now()
	log.Debug("Assistant request started", "prompt_length", len(prompt), "continued", previousID != "")

	params := responses.ResponseNewParams{
		Model: r.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: osdk.String(prompt)},
	}
	if r.instructions != "" {
		params.Instructions = osdk.String(r.instructions)
	}
	if previousID != "" {
		params.PreviousResponseID = osdk.String(previousID)
	}

	response, err := r.client.Responses.New(ctx, params)
	if err != nil {
		log.Debug("Assistant request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", "", fmt.Errorf("assistant request failed: %w", err)
	}

	text := strings.TrimSpace(response.OutputText())
	if text == "" {
		return "", "", errors.New("assistant returned no text")
	}
	log.Debug("Assistant request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))

	return text, response.ID, nil
}
