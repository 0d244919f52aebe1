// Package ai turns viewer comments into co-host replies. Generation goes
// through an OpenAI-compatible chat completion API; without an API key a
// local echo generator keeps the reply loop alive for offline use.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const systemPrompt = "あなたは配信のAI相方です。視聴者のコメントに短く親しみやすい日本語で返答してください。" +
	"返答は1〜2文、50文字以内を目安にしてください。"

const maxReplyTokens = 256

// Generator produces one reply to a viewer comment.
type Generator interface {
	Reply(ctx context.Context, userName, message string) (string, error)
	Model() string
}

type openAIGenerator struct {
	client openai.Client
	model  string
}

// NewOpenAIGenerator builds a Generator backed by an OpenAI-compatible API.
// baseURL may be empty for api.openai.com.
func NewOpenAIGenerator(apiKey, baseURL, model string) Generator {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &openAIGenerator{client: openai.NewClient(opts...), model: model}
}

func (g *openAIGenerator) Reply(ctx context.Context, userName, message string) (string, error) {
	user := message
	if userName != "" {
		user = fmt.Sprintf("%s: %s", userName, message)
	}
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(user),
		},
		MaxCompletionTokens: openai.Int(maxReplyTokens),
		Temperature:         openai.Float(0.8),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (g *openAIGenerator) Model() string {
	return g.model
}

// EchoGenerator is the offline fallback: it reflects the comment back so the
// reply, TTS and overlay circuits still run without an API key.
type EchoGenerator struct{}

func (EchoGenerator) Reply(_ context.Context, userName, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("empty message")
	}
	if r := []rune(message); len(r) > 30 {
		message = string(r[:30])
	}
	if userName == "" {
		return fmt.Sprintf("「%s」、いいですね！", message), nil
	}
	return fmt.Sprintf("%sさん、「%s」ですね！", userName, message), nil
}

func (EchoGenerator) Model() string {
	return "local-echo"
}
