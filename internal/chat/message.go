package chat

import (
	"time"

	"github.com/suPer8Hu/moodtune/internal/common"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is immutable once created.
type ChatMessage struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // epoch ms
}

func newMessage(role Role, content string, now time.Time) ChatMessage {
	return ChatMessage{
		ID:        common.MustULID(),
		Role:      role,
		Content:   content,
		Timestamp: now.UnixMilli(),
	}
}
