package vendors

import (
	"context"
	"strings"
	"time"
)

// EchoAssistant answers without a model: the reply restates the latest
// request, split into word-sized chunks
type EchoAssistant struct {
	// ChunkDelay is slept between chunks
	ChunkDelay time.Duration
}

// NewEchoAssistant creates an echo assistant
func NewEchoAssistant() *EchoAssistant {
	return &EchoAssistant{ChunkDelay: 20 * time.Millisecond}
}

// StreamReply streams the echo reply
func (e *EchoAssistant) StreamReply(ctx context.Context, history []Turn, onChunk func(string) error) (string, error) {
	var last string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			last = history[i].Content
			break
		}
	}
	reply := "Working on it: " + last

	for _, chunk := range splitChunks(reply) {
		if e.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(e.ChunkDelay):
			}
		}
		if err := onChunk(chunk); err != nil {
			return "", err
		}
	}
	return reply, nil
}

// NameChat uses the first words of the prompt
func (e *EchoAssistant) NameChat(_ context.Context, seedPrompt string) string {
	words := strings.Fields(seedPrompt)
	if len(words) == 0 {
		return fallbackName(time.Now())
	}
	if len(words) > 5 {
		words = words[:5]
	}
	return strings.Join(words, " ")
}

// SuggestFollowUps returns fixed suggestions
func (e *EchoAssistant) SuggestFollowUps(context.Context, []Turn) []string {
	return []string{
		"Add a settings page",
		"Improve the styling of the homepage",
		"Add more dummy content",
	}
}

// splitChunks splits s after each space, so the chunks concatenate back to s
func splitChunks(s string) []string {
	var chunks []string
	for s != "" {
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			chunks = append(chunks, s)
			break
		}
		chunks = append(chunks, s[:i+1])
		s = s[i+1:]
	}
	return chunks
}
