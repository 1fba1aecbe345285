package i18n

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"
)

// fallbackLocale supplies every key missing from the selected catalog.
const fallbackLocale = "en"

// catalogs 按 locale 注册的消息目录
// catalogs holds the message catalog of each supported locale.
var catalogs = map[string]map[string]string{
	"en":    EnMessages,
	"zh-CN": ZhCNMessages,
}

// I18n is an immutable translator for one locale.
type I18n struct {
	locale   string
	messages map[string]string
}

var global atomic.Pointer[I18n]

// Global returns the process translator, created from the environment on
// first use.
func Global() *I18n {
	if tr := global.Load(); tr != nil {
		return tr
	}
	global.CompareAndSwap(nil, New(""))
	return global.Load()
}

// Init replaces the process translator.
func Init(locale string) {
	global.Store(New(locale))
}

// T translates with the process translator.
func T(key string, args ...any) string {
	return Global().T(key, args...)
}

// New 创建指定 locale 的翻译器；空 locale 从环境变量检测
// New builds a translator for locale, detected from the environment when
// empty. Unknown locales get the English catalog.
func New(locale string) *I18n {
	if strings.TrimSpace(locale) == "" {
		locale = DetectLocale()
	}
	locale = normalizeLocale(locale)

	base := catalogs[fallbackLocale]
	messages := make(map[string]string, len(base))
	for k, v := range base {
		messages[k] = v
	}
	if overlay, ok := catalogs[locale]; ok {
		for k, v := range overlay {
			messages[k] = v
		}
	}
	return &I18n{locale: locale, messages: messages}
}

// T returns the message for key formatted with args, or key itself when the
// catalog has no such entry.
func (i *I18n) T(key string, args ...any) string {
	tmpl, ok := i.messages[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

func (i *I18n) Has(key string) bool {
	_, ok := i.messages[key]
	return ok
}

func (i *I18n) Locale() string { return i.locale }

// Locales lists the locales with a catalog.
func Locales() []string {
	out := make([]string, 0, len(catalogs))
	for l := range catalogs {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// DetectLocale reads ASSISTANT_LOCALE, then the POSIX locale variables.
func DetectLocale() string {
	for _, env := range []string{"ASSISTANT_LOCALE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return normalizeLocale(v)
		}
	}
	return fallbackLocale
}

// normalizeLocale maps "zh_CN.UTF-8"-style values onto catalog names.
func normalizeLocale(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, "_", "-")
	lower := strings.ToLower(s)
	switch {
	case s == "", lower == "c", lower == "posix":
		return fallbackLocale
	case strings.HasPrefix(lower, "zh"):
		return "zh-CN"
	case strings.HasPrefix(lower, "en"):
		return "en"
	}
	return s
}
