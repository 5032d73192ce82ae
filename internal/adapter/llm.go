package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/miofuku/ai-diary/pkg/errors"
	"github.com/miofuku/ai-diary/pkg/logger"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// LLMAdapter wraps the OpenAI-compatible API behind the capabilities the
// diary core needs: text optimization, content integration, entity
// extraction, topic thread analysis and speech-to-text. Every capability has
// a safe fallback; an LLM failure never aborts the caller's primary action.
type LLMAdapter struct {
	client          *openai.Client
	model           string
	transcribeModel string
	timeout         time.Duration
	logger          *zap.Logger
}

// NewLLMAdapter creates an adapter for the given endpoint. baseURL is
// optional; when empty the public OpenAI endpoint is used.
func NewLLMAdapter(baseURL, apiKey, modelID, transcribeModelID string, timeout time.Duration) *LLMAdapter {
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	}

	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &LLMAdapter{
		client:          openai.NewClientWithConfig(cfg),
		model:           modelID,
		transcribeModel: transcribeModelID,
		timeout:         timeout,
		logger:          logger.Get(),
	}
}

// Model returns the chat model in use.
func (a *LLMAdapter) Model() string {
	return a.model
}

// chat runs one chat completion with retry and a bounded per-call timeout.
func (a *LLMAdapter) chat(ctx context.Context, systemPrompt, userMsg string, temperature float32, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userMsg},
		},
		Temperature: temperature,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var resp openai.ChatCompletionResponse
	var err error
	maxRetries := 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			a.logger.Warn("Retrying LLM request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		resp, err = a.client.CreateChatCompletion(callCtx, req)
		cancel()
		if err == nil {
			break
		}

		a.logger.Error("LLM request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", a.model),
		)
	}
	if err != nil {
		return "", apperrors.NewLLMFailed(a.model, maxRetries, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in LLM response")
	}
	return resp.Choices[0].Message.Content, nil
}

const optimizeSystemPrompt = `You are a diary assistant. Correct any transcription errors and typos in the user's text without changing meaning. Fix grammar issues, improve flow, and preserve the content's emotion and style. Keep the corrections minimal. IMPORTANT: ALWAYS PRESERVE THE ORIGINAL LANGUAGE - DO NOT TRANSLATE CHINESE TEXT TO ENGLISH. If the text is in Chinese, keep it in Chinese.`

// OptimizeText corrects transcription errors and typos while preserving the
// entry's language and voice. On any failure the original content is returned
// unchanged so entry creation never fails because of optimization.
func (a *LLMAdapter) OptimizeText(ctx context.Context, content string) string {
	if strings.TrimSpace(content) == "" {
		return content
	}

	userMsg := fmt.Sprintf("Please optimize this diary entry, correcting any transcription errors while preserving its meaning and original language: %s", content)
	optimized, err := a.chat(ctx, optimizeSystemPrompt, userMsg, 0.3, false)
	if err != nil {
		a.logger.Warn("Text optimization failed, keeping original content", zap.Error(err))
		return content
	}
	if strings.TrimSpace(optimized) == "" {
		return content
	}

	a.logger.Debug("Text optimized",
		zap.Int("original_chars", len(content)),
		zap.Int("optimized_chars", len(optimized)),
	)
	return optimized
}

const integrateSystemPrompt = `You are a diary integration assistant who specializes in seamless content placement and formatting.

Your task:
1. Analyze both the existing diary content and the new content to be added
2. Find meaningful connections and semantic relationships between the content pieces
3. Determine the OPTIMAL insertion point in the existing content where the new content fits best
4. Insert the new content at this point, maintaining narrative flow
5. Apply appropriate formatting to improve readability:
   - Use bullet points for lists, tasks, ideas, or multiple distinct points
   - Use numbered lists for sequential steps or prioritized items
   - Use paragraphs for narrative content, reflections, or connected thoughts
   - Add appropriate section headers (using markdown ##) if introducing new major topics
6. Make minimal edits to create smooth transitions between paragraphs

Guidelines:
- If the new content relates closely to a specific section, integrate it there
- If the new content continues a thought, append to that specific section
- If the new content introduces a new topic, add a paragraph break
- Preserve the writer's voice, style, and emotional tone
- Never add timestamps or date markers
- IMPORTANT: PRESERVE THE ORIGINAL LANGUAGE. If content is in Chinese, keep it in Chinese - do not translate.`

// IntegrateContent merges new content into existing content at the best
// insertion point. Falls back to simple concatenation with a blank-line
// separator on failure.
func (a *LLMAdapter) IntegrateContent(ctx context.Context, existing, newContent string) string {
	userMsg := fmt.Sprintf("Existing diary content: %q\nNew diary content to integrate: %q", existing, newContent)
	integrated, err := a.chat(ctx, integrateSystemPrompt, userMsg, 0.3, false)
	if err != nil || strings.TrimSpace(integrated) == "" {
		if err != nil {
			a.logger.Warn("Content integration failed, falling back to concatenation", zap.Error(err))
		}
		return existing + "\n\n" + newContent
	}
	return integrated
}
