// Package openai adapts the OpenAI API to the completion and
// speech-to-text boundaries of the pipeline.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	gopenai "github.com/sashabaranov/go-openai"

	"voicecal/internal/models"
)

const (
	DefaultCompletionModel    = gopenai.GPT4o
	DefaultTranscriptionModel = gopenai.Whisper1
	defaultFilename           = "audio.wav"
)

// Client implements extract.Completer and pipeline.Transcriber.
type Client struct {
	api                *gopenai.Client
	completionModel    string
	transcriptionModel string
	logger             *slog.Logger
}

// NewClient creates a client. An empty baseURL uses the public API; empty
// model names fall back to the defaults.
func NewClient(logger *slog.Logger, apiKey, baseURL, completionModel, transcriptionModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is not set")
	}
	cfg := gopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if completionModel == "" {
		completionModel = DefaultCompletionModel
	}
	if transcriptionModel == "" {
		transcriptionModel = DefaultTranscriptionModel
	}
	return &Client{
		api:                gopenai.NewClientWithConfig(cfg),
		completionModel:    completionModel,
		transcriptionModel: transcriptionModel,
		logger:             logger,
	}, nil
}

// Complete sends system instructions and the user prompt and returns the
// first choice's text unmodified.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, gopenai.ChatCompletionRequest{
		Model: c.completionModel,
		Messages: []gopenai.ChatCompletionMessage{
			{Role: gopenai.ChatMessageRoleSystem, Content: system},
			{Role: gopenai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &gopenai.ChatCompletionResponseFormat{
			Type: gopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	c.logger.Debug("Chat completion received", "model", resp.Model, "totalTokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

// Transcribe converts audio to text. Zero-length audio and blank transcripts
// are reported as models.ErrEmptyInput.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename, language string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio is empty: %w", models.ErrEmptyInput)
	}
	if filename == "" {
		filename = defaultFilename
	}

	resp, err := c.api.CreateTranscription(ctx, gopenai.AudioRequest{
		Model:    c.transcriptionModel,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
		Language: language,
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("no speech recognized: %w", models.ErrEmptyInput)
	}
	c.logger.Debug("Audio transcribed", "bytes", len(audio), "language", language)
	return text, nil
}
