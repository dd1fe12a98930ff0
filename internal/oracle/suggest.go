// Package oracle wraps the two external collaborators of the repair passes:
// a suggestion oracle that answers a prompt with text, and a page-execution
// oracle that loads a document in a headless browser and reports runtime
// errors. Both are narrow interfaces so passes can run against fakes.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"sketch-repair/internal/logger"
	"sketch-repair/internal/types"
)

// ErrNoCredential is returned when the suggestion oracle has no API key.
var ErrNoCredential = errors.New("no API key configured for the suggestion oracle")

// ErrDisabled is returned by oracles that were turned off by configuration.
var ErrDisabled = errors.New("oracle disabled")

// Prompt is one request to the suggestion oracle.
type Prompt struct {
	System    string
	User      string
	MaxTokens int
}

// Suggester answers a prompt with free text. Any error means the caller must
// fall back to its deterministic path.
type Suggester interface {
	Suggest(ctx context.Context, p Prompt) (string, error)
}

// SuggesterFunc adapts a function to the Suggester interface.
type SuggesterFunc func(ctx context.Context, p Prompt) (string, error)

// Suggest calls f
func (f SuggesterFunc) Suggest(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// Disabled is a Suggester that always fails with ErrDisabled.
var Disabled Suggester = disabledSuggester{}

type disabledSuggester struct{}

func (disabledSuggester) Suggest(context.Context, Prompt) (string, error) {
	return "", ErrDisabled
}

// EinoSuggester asks an OpenAI compatible chat model through eino.
type EinoSuggester struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	timeout   time.Duration
	log       logger.Logger

	once    sync.Once
	chat    model.BaseChatModel
	initErr error
}

// NewEinoSuggester creates a suggester from the [suggest] configuration.
func NewEinoSuggester(cfg types.SuggestConfig, log logger.Logger) *EinoSuggester {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &EinoSuggester{
		apiKey:    cfg.APIKey,
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		log:       log,
	}
}

func (s *EinoSuggester) chatModel(ctx context.Context) (model.BaseChatModel, error) {
	s.once.Do(func() {
		cfg := &openai.ChatModelConfig{
			Model:   s.model,
			APIKey:  s.apiKey,
			Timeout: s.timeout,
		}
		if s.baseURL != "" {
			cfg.BaseURL = s.baseURL
		}
		s.chat, s.initErr = openai.NewChatModel(ctx, cfg)
	})
	return s.chat, s.initErr
}

// Suggest sends the prompt and returns the text of the reply.
func (s *EinoSuggester) Suggest(ctx context.Context, p Prompt) (string, error) {
	if s.apiKey == "" {
		return "", types.NewAppError(types.ErrNoCredential, "suggestion oracle unavailable", ErrNoCredential)
	}

	chat, err := s.chatModel(ctx)
	if err != nil {
		return "", types.NewAppError(types.ErrOracle, "failed to create chat model", err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.maxTokens
	}
	var opts []model.Option
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}
	opts = append(opts, model.WithTemperature(0))

	messages := []*schema.Message{}
	if p.System != "" {
		messages = append(messages, schema.SystemMessage(p.System))
	}
	messages = append(messages, schema.UserMessage(p.User))

	start := time.Now()
	resp, err := chat.Generate(ctx, messages, opts...)
	if err != nil {
		s.log.Warn("suggestion request failed", logger.Err(err), logger.String("model", s.model))
		return "", types.NewAppError(types.ErrOracle, "suggestion request failed", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", types.NewAppError(types.ErrOracle, "empty suggestion", nil)
	}

	s.log.Debug("suggestion received",
		logger.String("model", s.model),
		logger.Int("chars", len(resp.Content)),
		logger.Int64("elapsedMs", time.Since(start).Milliseconds()))
	return resp.Content, nil
}

// IsSoftFailure reports whether err is an expected oracle outage (missing key,
// disabled, timeout) rather than a programming error. Both lead to the same
// fallback; the distinction only changes the log level.
func IsSoftFailure(err error) bool {
	if err == nil {
		return false
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Code == types.ErrNoCredential || appErr.Code == types.ErrOracle
	}
	return errors.Is(err, ErrDisabled) || errors.Is(err, ErrNoCredential) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// Describe returns a short label of the suggester for logs.
func Describe(s Suggester) string {
	switch v := s.(type) {
	case *EinoSuggester:
		return fmt.Sprintf("openai:%s", v.model)
	case disabledSuggester:
		return "disabled"
	case nil:
		return "none"
	default:
		return fmt.Sprintf("%T", s)
	}
}
