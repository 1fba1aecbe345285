package contextmgr

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"assistant/internal/chat"
)

const (
	heuristicEncoding = "heuristic"
	defaultEncoding   = "cl100k_base"

	// messageOverhead is the framing cost of one message.
	messageOverhead = 4
	// imageTokens is the flat estimate charged per inline image.
	imageTokens = 1600
	// toolUseOverhead and toolResultOverhead cover the block structure.
	toolUseOverhead    = 8
	toolResultOverhead = 4
)

// encodingPrefixes maps model name prefixes onto BPE encodings. Models not
// listed, Claude included, are counted with cl100k_base as an approximation.
var encodingPrefixes = []struct {
	prefix   string
	encoding string
}{
	{"o1", "o200k_base"},
	{"o3", "o200k_base"},
	{"o4", "o200k_base"},
	{"gpt-4o", "o200k_base"},
	{"chatgpt-4o", "o200k_base"},
	{"gpt-4.1", "o200k_base"},
}

// Tokenizer 历史预算使用的 token 计数器；BPE 表在首次计数时加载，失败则回退到启发式
// Tokenizer counts tokens for the history budget. The BPE table is loaded on
// first use; when it cannot be loaded (no cache, no network) counts fall back
// to a character heuristic.
type Tokenizer struct {
	encodingName string

	once     sync.Once
	encoder  *tiktoken.Tiktoken
	fallback bool
}

// NewTokenizer returns a tokenizer for the named BPE encoding.
func NewTokenizer(encodingName string) *Tokenizer {
	return &Tokenizer{encodingName: encodingName}
}

// NewHeuristicTokenizer never loads a BPE table; counts are estimates.
func NewHeuristicTokenizer() *Tokenizer {
	t := &Tokenizer{encodingName: heuristicEncoding, fallback: true}
	t.once.Do(func() {})
	return t
}

// NewTokenizerForModel picks the encoding matching model.
func NewTokenizerForModel(model string) *Tokenizer {
	return NewTokenizer(modelToEncoding(model))
}

func (t *Tokenizer) load() {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encodingName)
		if err != nil {
			t.fallback = true
			return
		}
		t.encoder = enc
	})
}

// Count returns the total cost of messages.
func (t *Tokenizer) Count(messages []chat.Message) int {
	total := 0
	for _, msg := range messages {
		total += t.CountMessage(msg)
	}
	return total
}

func (t *Tokenizer) CountText(text string) int {
	if text == "" {
		return 0
	}
	t.load()
	if t.fallback {
		return heuristicTokenCount(text)
	}
	return len(t.encoder.Encode(text, nil, nil))
}

// IsPrecise reports whether counts come from a BPE table.
func (t *Tokenizer) IsPrecise() bool {
	t.load()
	return !t.fallback
}

func (t *Tokenizer) EncodingName() string { return t.encodingName }

// CountMessage 计算单条消息的 token 数
// CountMessage counts one message including per-block overhead.
func (t *Tokenizer) CountMessage(msg chat.Message) int {
	tokens := messageOverhead + t.CountText(string(msg.Role))
	for _, b := range msg.Content {
		switch b.Type {
		case chat.BlockText:
			tokens += t.CountText(b.Text)
		case chat.BlockImage:
			tokens += imageTokens
		case chat.BlockToolUse:
			tokens += toolUseOverhead + t.CountText(b.ToolName) + t.CountText(string(b.Input))
		case chat.BlockToolResult:
			tokens += toolResultOverhead + t.CountText(b.Result)
		}
	}
	return tokens
}

// heuristicTokenCount charges ~1.5 tokens per CJK rune and ~0.25 per other rune.
func heuristicTokenCount(text string) int {
	if text == "" {
		return 0
	}
	var cjk, other int
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	return max(1, int(float64(cjk)*1.5+float64(other)*0.25))
}

func isCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF, // unified ideographs
		r >= 0x3400 && r <= 0x4DBF, // extension A
		r >= 0x3000 && r <= 0x303F, // symbols and punctuation
		r >= 0xFF00 && r <= 0xFFEF, // fullwidth forms
		r >= 0xAC00 && r <= 0xD7AF: // hangul
		return true
	}
	return false
}

func modelToEncoding(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, e := range encodingPrefixes {
		if strings.HasPrefix(m, e.prefix) {
			return e.encoding
		}
	}
	return defaultEncoding
}
