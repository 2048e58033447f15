// Package vendors holds the assistant backends of the mock build service.
package vendors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/xiaoyuanzhu-com/buildchat/log"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Turn is one entry of the conversation handed to an assistant
type Turn struct {
	Role    string
	Content string
}

// Assistant produces replies, chat names and follow-up prompts
type Assistant interface {
	// StreamReply streams the reply to the conversation through onChunk and
	// returns the full text
	StreamReply(ctx context.Context, history []Turn, onChunk func(string) error) (string, error)
	NameChat(ctx context.Context, seedPrompt string) string
	SuggestFollowUps(ctx context.Context, history []Turn) []string
}

// OpenAIConfig configures the OpenAI backed assistant
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewAssistant returns an OpenAI assistant when an API key is configured and
// the echo assistant otherwise
func NewAssistant(cfg OpenAIConfig) Assistant {
	if cfg.APIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY not configured, using echo assistant")
		return NewEchoAssistant()
	}
	return NewOpenAIClient(cfg)
}

// OpenAIClient wraps the OpenAI client
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates an assistant backed by the chat completions API
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" && cfg.BaseURL != defaultBaseURL {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	log.Info().Str("model", model).Str("baseURL", clientConfig.BaseURL).Msg("OpenAI initialized")
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

const replySystemPrompt = `You are a full-stack developer helping someone build a webapp.
Answer the latest request, describe the changes you make to the project and keep it brief.`

// StreamReply streams a completion for the conversation
func (o *OpenAIClient) StreamReply(ctx context.Context, history []Turn, onChunk func(string) error) (string, error) {
	messages := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: replySystemPrompt,
	}}
	for _, t := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: t.Role, Content: t.Content})
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return "", fmt.Errorf("create completion stream: %w", err)
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return reply.String(), fmt.Errorf("receive completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		reply.WriteString(delta)
		if err := onChunk(delta); err != nil {
			return reply.String(), err
		}
	}
	return reply.String(), nil
}

const nameSystemPrompt = `You are helping name a session for a user building an app.

Given the initial prompt a user used to start the project, generate a short name for the user's current task (be creative but concise).

Respond only in the following format:
session: ...`

var sessionNameRe = regexp.MustCompile(`session:\s*(.+)`)

// NameChat asks the model for a session name, falling back to a dated name
func (o *OpenAIClient) NameChat(ctx context.Context, seedPrompt string) string {
	content, err := o.complete(ctx, nameSystemPrompt, seedPrompt)
	if err != nil {
		log.Warn().Err(err).Msg("name chat failed")
		return fallbackName(time.Now())
	}
	return parseSessionName(content, time.Now())
}

const followUpSystemPrompt = `You are a full-stack developer helping someone build a webapp.

You are given a conversation between the user and the assistant.
Suggest 3 follow up prompts that the user is likely to ask next, written as brief commands (at most 10 words).

Respond only in the following format:
 - ...prompt...
 - ...prompt...
 - ...prompt...`

// SuggestFollowUps proposes the next prompts; failures yield no suggestions
func (o *OpenAIClient) SuggestFollowUps(ctx context.Context, history []Turn) []string {
	var b strings.Builder
	for _, t := range history {
		fmt.Fprintf(&b, "<%s>%s</%s>\n\n", t.Role, t.Content, t.Role)
	}
	conversation := b.String()
	if len(conversation) > 10000 {
		conversation = conversation[len(conversation)-10000:]
	}

	content, err := o.complete(ctx, followUpSystemPrompt, conversation)
	if err != nil {
		log.Warn().Err(err).Msg("follow-up suggestion failed")
		return nil
	}
	return parseFollowUps(content)
}

func (o *OpenAIClient) complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func parseSessionName(content string, now time.Time) string {
	m := sessionNameRe.FindStringSubmatch(content)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		log.Warn().Str("content", content).Msg("invalid name response format")
		return fallbackName(now)
	}
	return strings.TrimSpace(m[1])
}

func fallbackName(now time.Time) string {
	return "Chat " + now.Format("2006-01-02")
}

var followUpRe = regexp.MustCompile(`(?m)^\s*-\s*(.+)$`)

func parseFollowUps(content string) []string {
	var out []string
	for _, m := range followUpRe.FindAllStringSubmatch(content, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			out = append(out, s)
		}
	}
	return out
}
