package chat

import "encoding/json"

// Role 消息角色
// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// BlockType 内容块类型
// BlockType tags a ContentBlock variant.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock 是与模型交换的最小单元；Type 决定哪些字段有效。
// ContentBlock is one unit of a message payload; Type selects which fields are meaningful.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image (base64 inline)
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`

	// tool_use / tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Result    string          `json:"result,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

func ImageBlock(mediaType, base64Data string) ContentBlock {
	return ContentBlock{Type: BlockImage, MediaType: mediaType, Data: base64Data}
}

func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ToolUseID: id, ToolName: name, Input: input}
}

func ToolResultBlock(id, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: id, Result: content, IsError: isError}
}

// Message 是发给模型的一条消息
// Message is one entry of the conversation sent to the model.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// FirstText returns the text of the first text block, or "".
func FirstText(blocks []ContentBlock) string {
	for _, b := range blocks {
		if b.Type == BlockText {
			return b.Text
		}
	}
	return ""
}

// ToolUses returns the tool_use blocks in order.
func ToolUses(blocks []ContentBlock) []ContentBlock {
	var out []ContentBlock
	for _, b := range blocks {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// ToolSchema describes one function tool exposed to the model.
// InputSchema is a JSON Schema object ("type": "object").
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}
