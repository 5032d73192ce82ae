package adapter

import (
	"context"
	"io"
	"strings"

	apperrors "github.com/miofuku/ai-diary/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Transcribe converts recorded audio to text via the Whisper endpoint. The
// language hint is optional; Whisper accepts plain codes like "zh" for both
// simplified and traditional Chinese. A failure here is surfaced to the
// caller as a failed transcription only - it never touches stored entries.
func (a *LLMAdapter) Transcribe(ctx context.Context, audio io.Reader, filename, language string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req := openai.AudioRequest{
		Model:    a.transcribeModel,
		Reader:   audio,
		FilePath: filename,
		Language: language,
	}

	resp, err := a.client.CreateTranscription(callCtx, req)
	if err != nil {
		a.logger.Error("Transcription failed",
			zap.Error(err),
			zap.String("language", language),
		)
		return "", apperrors.NewTranscribeFailed(language, err)
	}

	text := strings.TrimSpace(resp.Text)
	a.logger.Debug("Audio transcribed",
		zap.Int("chars", len(text)),
		zap.String("language", language),
	)
	return text, nil
}
