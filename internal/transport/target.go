package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// String encodes the target as "<chat_id>" or "<chat_id>:<thread_id>".
func (t ChatTarget) String() string {
	if t.ThreadID != 0 {
		return strconv.FormatInt(t.ChatID, 10) + ":" + strconv.Itoa(t.ThreadID)
	}
	return strconv.FormatInt(t.ChatID, 10)
}

// IsZero reports whether no chat is set.
func (t ChatTarget) IsZero() bool { return t.ChatID == 0 }

// Contains reports whether a message from (chatID, threadID) belongs to this target.
// A target without a thread matches every thread of the chat.
func (t ChatTarget) Contains(chatID int64, threadID int) bool {
	if t.ChatID != chatID {
		return false
	}
	return t.ThreadID == 0 || t.ThreadID == threadID
}

// ParseChatTarget parses the String() encoding.
func ParseChatTarget(s string) (ChatTarget, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ChatTarget{}, fmt.Errorf("empty chat target")
	}
	chatPart, threadPart, hasThread := strings.Cut(s, ":")
	chatID, err := strconv.ParseInt(strings.TrimSpace(chatPart), 10, 64)
	if err != nil || chatID == 0 {
		return ChatTarget{}, fmt.Errorf("invalid chat id %q", chatPart)
	}
	t := ChatTarget{ChatID: chatID}
	if hasThread {
		tid, err := strconv.Atoi(strings.TrimSpace(threadPart))
		if err != nil || tid < 0 {
			return ChatTarget{}, fmt.Errorf("invalid thread id %q", threadPart)
		}
		t.ThreadID = tid
	}
	return t, nil
}
