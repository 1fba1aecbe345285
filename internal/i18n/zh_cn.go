package i18n

// ZhCNMessages 简体中文消息目录
var ZhCNMessages = map[string]string{
	// UI - 面板
	"panel.chat":     "对话",
	"panel.sessions": "会话",
	"panel.quota":    "存储配额",

	// UI - 状态栏
	"status.ready":    "就绪",
	"status.thinking": "思考中...",
	"status.offline":  "无法连接服务器: %s",
	"status.layout":   "布局: %s",

	// UI - 输入框
	"input.placeholder": "输入问题...",
	"input.submit_hint": "回车发送",
	"input.pending":     "待发送附件 %d 个",

	// UI - 快捷键
	"keys.send":     "enter 发送",
	"keys.sidebar":  "ctrl+b 会话列表",
	"keys.new":      "ctrl+n 新对话",
	"keys.quota":    "ctrl+q 配额",
	"keys.quit":     "ctrl+c 退出",
	"keys.navigate": "↑/↓ 选择",

	// 会话
	"session.default_title": "新对话",
	"session.created":       "已开始新对话",
	"session.switched":      "已切换到 %s",
	"session.renamed":       "已重命名为 %s",
	"session.deleted":       "已删除 %s",
	"session.cleared":       "已清空 %s",
	"session.empty":         "暂无会话",
	"session.current":       "当前",
	"session.messages":      "%d 条消息",
	"session.trimmed":       "为节省空间已裁剪 %d 条较早的消息",

	// 附件
	"attach.added":        "已添加附件 %s (%s)",
	"attach.sent_caption": "Sent with attachments",

	// 配额视图
	"quota.storage":     "存储",
	"quota.sessions":    "会话",
	"quota.messages":    "消息",
	"quota.attachments": "附件",
	"quota.usage":       "%s / %s (%.1f%%)",
	"quota.tip_large":   "大图片和文件会占用更多存储空间",
	"quota.tip_trim":    "较早的会话会被自动裁剪以节省空间",
	"quota.tip_delete":  "可以删除不再使用的会话来释放空间",

	// 配额通知
	"quota.soft":                "存储空间不足 (已使用 %.1f%%)",
	"quota.soft_detail":         "建议清理旧的对话以释放空间。",
	"quota.critical":            "存储配额告急 (已使用 %.1f%%)",
	"quota.critical_detail":     "旧会话将被自动清理，为新消息腾出空间。",
	"quota.evicted":             "存储配额已超出",
	"quota.evicted_detail":      "旧的对话已被自动清理以释放空间。",
	"quota.unresolvable":        "存储配额已超出",
	"quota.unresolvable_detail": "没有可以清理的旧会话，请手动删除会话。",

	// 错误
	"error.invalid_message":      "消息内容无效",
	"error.not_configured":       "AI 服务未配置，请检查 API key。",
	"error.upstream":             "抱歉，处理请求时出错，请重试。",
	"error.too_large":            "请求体过大",
	"error.attachment_too_large": "附件 %s 超过 %s 限制",
	"error.message_too_large":    "消息过大，无法保存",
	"error.session_not_found":    "会话不存在: %s",
	"error.invalid_title":        "会话标题不能为空",
	"error.unknown_command":      "未知命令: %s",
	"error.usage":                "用法: %s",
	"error.read_file":            "无法读取 %s: %s",

	// 命令
	"cmd.help": "命令: /new, /sessions, /switch ID, /rename 标题, /delete [ID], /clear [ID], /attach 路径, /quota, /layout [floating|sidebar], /help, /exit",
}
