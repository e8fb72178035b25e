package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"crc-news/models"
)

const classifyPrompt = `You screen news and research for a colorectal cancer (CRC) information site.
Return only a JSON object with exactly these keys:
{"tags": [..], "relevance": 0-10, "reason": "...", "summary": "..."}
- tags: zero or more of: %s
- relevance: 10 = primarily about colorectal cancer, 0 = unrelated. Other cancers score 0-2.
- reason: one short sentence.
- summary: one or two neutral sentences using only facts stated in the text.`

const generatePrompt = `Write a neutral, factual excerpt of one to three sentences for the article below.
Use only information stated in the text. Do not add numbers, statistics, names or claims that are not in the text.
Do not give medical advice. Return only the excerpt.`

// OpenAIBackend implements Classifier and Generator with the chat completions API.
type OpenAIBackend struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewOpenAIBackend creates a backend. baseURL may be empty for the public API.
func NewOpenAIBackend(apiKey, model, baseURL string, timeout time.Duration, logger *zap.Logger) *OpenAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIBackend{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

// Classify asks the model for a relevance verdict and parses it strictly.
func (b *OpenAIBackend) Classify(ctx context.Context, doc Document) (Classification, error) {
	system := fmt.Sprintf(classifyPrompt, strings.Join(models.TopicTags, ", "))
	user := fmt.Sprintf("Title: %s\n\nText:\n%s", doc.Title, TruncateRunes(doc.Text, MaxClassifierChars))

	content, err := b.complete(ctx, system, user, true)
	if err != nil {
		return Classification{}, err
	}
	return ParseClassification(content)
}

// Generate asks the model for a short excerpt.
func (b *OpenAIBackend) Generate(ctx context.Context, title, text string) (string, error) {
	user := fmt.Sprintf("Title: %s\n\nText:\n%s", title, TruncateRunes(text, MaxClassifierChars))
	content, err := b.complete(ctx, generatePrompt, user, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func (b *OpenAIBackend) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		b.logger.Warn("OpenAI call failed", zap.String("model", b.model), zap.Duration("duration", time.Since(start)), zap.Error(err))
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	b.logger.Debug("OpenAI call finished",
		zap.String("model", b.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens))
	return resp.Choices[0].Message.Content, nil
}
