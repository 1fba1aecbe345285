package contextmgr

import (
	"assistant/internal/chat"
)

// Counter 计算单条消息 token 数
// Counter estimates the token cost of one message.
type Counter interface {
	CountMessage(msg chat.Message) int
}

var heuristic = NewHeuristicTokenizer()

// EstimateTokens 使用启发式估算消息总 token 数
// EstimateTokens returns a heuristic token estimate for messages.
func EstimateTokens(messages []chat.Message) int {
	return heuristic.Count(messages)
}

// FitHistory 从尾部保留能放进预算的最近消息
// FitHistory keeps the longest suffix of history whose total cost fits budget.
// A budget <= 0 keeps everything. The result never starts with an assistant
// message, so the conversation handed to the model opens with a user turn.
func FitHistory(history []chat.Message, budget int, counter Counter) []chat.Message {
	if budget <= 0 || len(history) == 0 {
		return history
	}
	if counter == nil {
		counter = heuristic
	}
	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := counter.CountMessage(history[i])
		if used+cost > budget {
			break
		}
		used += cost
		start = i
	}
	for start < len(history) && history[start].Role == chat.RoleAssistant {
		start++
	}
	return history[start:]
}
