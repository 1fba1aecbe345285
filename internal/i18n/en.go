package i18n

// EnMessages English message catalog
var EnMessages = map[string]string{
	// UI - panels
	"panel.chat":     "Chat",
	"panel.sessions": "Sessions",
	"panel.quota":    "Storage Quota",

	// UI - status bar
	"status.ready":    "Ready",
	"status.thinking": "Thinking...",
	"status.offline":  "Server unreachable: %s",
	"status.layout":   "Layout: %s",

	// UI - input
	"input.placeholder": "Ask question...",
	"input.submit_hint": "Enter to send",
	"input.pending":     "%d attachment(s) pending",

	// UI - keybindings
	"keys.send":     "enter send",
	"keys.sidebar":  "ctrl+b sessions",
	"keys.new":      "ctrl+n new chat",
	"keys.quota":    "ctrl+q quota",
	"keys.quit":     "ctrl+c quit",
	"keys.navigate": "↑/↓ select",

	// Sessions
	"session.default_title": "New Chat",
	"session.created":       "Started a new chat",
	"session.switched":      "Switched to %s",
	"session.renamed":       "Renamed to %s",
	"session.deleted":       "Deleted %s",
	"session.cleared":       "Cleared %s",
	"session.empty":         "No sessions yet",
	"session.current":       "current",
	"session.messages":      "%d messages",
	"session.trimmed":       "%d older message(s) trimmed to save space",

	// Attachments
	"attach.added":        "Attached %s (%s)",
	"attach.sent_caption": "Sent with attachments",

	// Quota view
	"quota.storage":     "Storage",
	"quota.sessions":    "Sessions",
	"quota.messages":    "Messages",
	"quota.attachments": "Attachments",
	"quota.usage":       "%s / %s (%.1f%%)",
	"quota.tip_large":   "Large images and files consume more storage space",
	"quota.tip_trim":    "Older sessions are automatically trimmed to save space",
	"quota.tip_delete":  "Consider deleting unused sessions to free up space",

	// Quota notifications
	"quota.soft":                "Storage space running low (%.1f%% used)",
	"quota.soft_detail":         "Consider clearing old chat sessions to free up space.",
	"quota.critical":            "Storage quota critical (%.1f%% used)",
	"quota.critical_detail":     "Old sessions will be automatically cleared to make room for new messages.",
	"quota.evicted":             "Storage quota exceeded",
	"quota.evicted_detail":      "Old chat sessions have been automatically cleared to free up space.",
	"quota.unresolvable":        "Storage quota exceeded",
	"quota.unresolvable_detail": "No older session can be cleared. Delete a session to free up space.",

	// Errors
	"error.invalid_message":      "Invalid message content",
	"error.not_configured":       "AI service is not configured. Please check the API key.",
	"error.upstream":             "I apologize, but I encountered an error processing your request. Please try again.",
	"error.too_large":            "Request body is too large",
	"error.attachment_too_large": "Attachment %s exceeds the %s limit",
	"error.message_too_large":    "Message is too large to store",
	"error.session_not_found":    "Session not found: %s",
	"error.invalid_title":        "Session title cannot be empty",
	"error.unknown_command":      "Unknown command: %s",
	"error.usage":                "Usage: %s",
	"error.read_file":            "Cannot read %s: %s",

	// Commands
	"cmd.help": "Commands: /new, /sessions, /switch ID, /rename TITLE, /delete [ID], /clear [ID], /attach PATH, /quota, /layout [floating|sidebar], /help, /exit",
}
