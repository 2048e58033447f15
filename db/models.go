package db

import "time"

// Chat represents a chat (project session) record
type Chat struct {
	ID         int64  `json:"id"`
	Owner      string `json:"owner"`
	Name       string `json:"name"`
	SeedPrompt string `json:"seedPrompt"`
	CreatedAt  int64  `json:"createdAt"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// Message represents a persisted transcript entry
type Message struct {
	ID              string   `json:"id"`
	ChatID          int64    `json:"chatId"`
	Role            string   `json:"role"`
	Content         string   `json:"content"`
	ThinkingContent string   `json:"thinkingContent,omitempty"`
	Images          []string `json:"images"`
	CreatedAt       int64    `json:"createdAt"`
}

// Account holds the remaining chat credits of a user
type Account struct {
	Username  string `json:"username"`
	Credits   int    `json:"credits"`
	CreatedAt int64  `json:"createdAt"`
}

// NowMs returns the current time in milliseconds since epoch
func NowMs() int64 {
	return time.Now().UnixMilli()
}
