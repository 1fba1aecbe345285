package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

type ProviderConfig struct {
	Name       string `json:"name" yaml:"name"`
	BaseURL    string `json:"base_url" yaml:"base_url"`
	Model      string `json:"model" yaml:"model"`
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	MaxTokens  int    `json:"max_tokens" yaml:"max_tokens"`
	TimeoutMS  int    `json:"timeout_ms" yaml:"timeout_ms"`
	MaxRetries int    `json:"max_retries" yaml:"max_retries"`
}

type ServerConfig struct {
	Addr             string `json:"addr" yaml:"addr"`
	MaxBodyBytes     int64  `json:"max_body_bytes" yaml:"max_body_bytes"`
	ReadTimeoutMS    int    `json:"read_timeout_ms" yaml:"read_timeout_ms"`
	WriteTimeoutMS   int    `json:"write_timeout_ms" yaml:"write_timeout_ms"`
	RequestTimeoutMS int    `json:"request_timeout_ms" yaml:"request_timeout_ms"` // 0 disables the per-turn deadline
}

// QuotaConfig 会话存储上限
// QuotaConfig bounds the stored conversation data of one client.
type QuotaConfig struct {
	MaxStorageBytes       int64 `json:"max_storage_bytes" yaml:"max_storage_bytes"`
	MaxSessions           int   `json:"max_sessions" yaml:"max_sessions"`
	MaxMessagesPerSession int   `json:"max_messages_per_session" yaml:"max_messages_per_session"`
	MaxAttachmentBytes    int64 `json:"max_attachment_bytes" yaml:"max_attachment_bytes"`
}

type ThresholdConfig struct {
	Level           string  `json:"level" yaml:"level"`
	Percent         float64 `json:"percent" yaml:"percent"`
	SuppressMinutes int     `json:"suppress_minutes" yaml:"suppress_minutes"`
}

// MonitorConfig 配额监控策略
// MonitorConfig is the table-driven quota monitor policy.
type MonitorConfig struct {
	IntervalMS int               `json:"interval_ms" yaml:"interval_ms"`
	EvictBatch int               `json:"evict_batch" yaml:"evict_batch"`
	Thresholds []ThresholdConfig `json:"thresholds" yaml:"thresholds"`
}

type StorageConfig struct {
	BaseDir  string `json:"base_dir" yaml:"base_dir"`
	Backend  string `json:"backend" yaml:"backend"` // sqlite | file
	ClientID string `json:"client_id" yaml:"client_id"`
}

type ClientConfig struct {
	ServerURL string `json:"server_url" yaml:"server_url"`
	TimeoutMS int    `json:"timeout_ms" yaml:"timeout_ms"`
	Locale    string `json:"locale" yaml:"locale"`
	Layout    string `json:"layout" yaml:"layout"` // floating | sidebar
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
}

type Config struct {
	Provider           ProviderConfig `json:"provider" yaml:"provider"`
	Server             ServerConfig   `json:"server" yaml:"server"`
	Quota              QuotaConfig    `json:"quota" yaml:"quota"`
	Monitor            MonitorConfig  `json:"monitor" yaml:"monitor"`
	Storage            StorageConfig  `json:"storage" yaml:"storage"`
	Client             ClientConfig   `json:"client" yaml:"client"`
	Log                LogConfig      `json:"log" yaml:"log"`
	SystemPrompt       string         `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	HistoryTokenBudget int            `json:"history_token_budget" yaml:"history_token_budget"`
}

type fileProviderConfig struct {
	Name       string `json:"name"`
	BaseURL    string `json:"base_url"`
	Model      string `json:"model"`
	APIKey     string `json:"api_key"`
	MaxTokens  int    `json:"max_tokens"`
	TimeoutMS  int    `json:"timeout_ms"`
	MaxRetries *int   `json:"max_retries"`
}

type fileConfig struct {
	Provider           *fileProviderConfig `json:"provider"`
	Server             *ServerConfig       `json:"server"`
	Quota              *QuotaConfig        `json:"quota"`
	Monitor            *MonitorConfig      `json:"monitor"`
	Storage            *StorageConfig      `json:"storage"`
	Client             *ClientConfig       `json:"client"`
	Log                *LogConfig          `json:"log"`
	SystemPrompt       *string             `json:"system_prompt"`
	HistoryTokenBudget *int                `json:"history_token_budget"`
}

func Default() Config {
	return Config{
		Provider: ProviderConfig{
			Name:       DefaultProvider,
			Model:      DefaultAnthropicModel,
			MaxTokens:  DefaultMaxTokens,
			TimeoutMS:  120000,
			MaxRetries: 2,
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8787",
			MaxBodyBytes:   32 << 20,
			ReadTimeoutMS:  30000,
			WriteTimeoutMS: 180000,
		},
		Quota: QuotaConfig{
			MaxStorageBytes:       4 << 20,
			MaxSessions:           10,
			MaxMessagesPerSession: 50,
			MaxAttachmentBytes:    1 << 20,
		},
		Monitor: MonitorConfig{
			IntervalMS: 30000,
			EvictBatch: 2,
			Thresholds: []ThresholdConfig{
				{Level: "soft", Percent: 90, SuppressMinutes: 60},
				{Level: "critical", Percent: 95, SuppressMinutes: 30},
			},
		},
		Storage: StorageConfig{
			BaseDir:  "~/.assistant",
			Backend:  "sqlite",
			ClientID: "default",
		},
		Client: ClientConfig{
			ServerURL: "http://127.0.0.1:8787",
			TimeoutMS: 180000,
			Locale:    "en",
			Layout:    "floating",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load 依次合并：默认值 → 全局配置 → 项目配置 → 显式路径 → 环境变量
// Load merges, in order: defaults, the global file, the project file, the
// explicit path, then environment variables. Missing files are skipped; an
// explicit path that does not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if p := firstExisting(globalConfigPaths()); p != "" {
		if err := mergeFromFile(&cfg, p); err != nil {
			return Config{}, err
		}
	}
	if p := firstExisting(projectConfigPaths()); p != "" {
		if err := mergeFromFile(&cfg, p); err != nil {
			return Config{}, err
		}
	}
	if path = strings.TrimSpace(path); path != "" {
		resolved, err := expandPath(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "expand config path %q", path)
		}
		if _, err := os.Stat(resolved); err != nil {
			return Config{}, errors.Wrapf(err, "config %q", resolved)
		}
		if err := mergeFromFile(&cfg, resolved); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

var configExts = []string{".json", ".jsonc", ".yaml", ".yml"}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(configExts))
	for _, ext := range configExts {
		out = append(out, filepath.Join(home, ".assistant", "config"+ext))
	}
	return out
}

func projectConfigPaths() []string {
	out := make([]string, 0, len(configExts))
	for _, ext := range configExts {
		out = append(out, "assistant.config"+ext)
	}
	return out
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "read config %q", path)
	}
	fc, err := parseFile(path, data)
	if err != nil {
		return errors.Wrapf(err, "parse config %q", path)
	}
	applyFileConfig(cfg, fc)
	return nil
}

// parseFile 将 YAML 或带注释的 JSON 解析为 fileConfig
// parseFile decodes YAML, or JSON with comments and trailing commas. YAML is
// re-encoded as JSON so both formats share the json tags of fileConfig.
func parseFile(path string, data []byte) (fileConfig, error) {
	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fc, err
		}
		if doc == nil {
			return fc, nil
		}
		encoded, err := json.Marshal(doc)
		if err != nil {
			return fc, err
		}
		data = encoded
	default:
		data = jsonc.ToJSON(data)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return fc, nil
	}
	err := json.Unmarshal(data, &fc)
	return fc, err
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Provider != nil {
		cfg.Provider = mergeProvider(cfg.Provider, *fc.Provider)
	}
	if fc.Server != nil {
		cfg.Server = mergeServer(cfg.Server, *fc.Server)
	}
	if fc.Quota != nil {
		cfg.Quota = mergeQuota(cfg.Quota, *fc.Quota)
	}
	if fc.Monitor != nil {
		if fc.Monitor.IntervalMS > 0 {
			cfg.Monitor.IntervalMS = fc.Monitor.IntervalMS
		}
		if fc.Monitor.EvictBatch > 0 {
			cfg.Monitor.EvictBatch = fc.Monitor.EvictBatch
		}
		if len(fc.Monitor.Thresholds) > 0 {
			cfg.Monitor.Thresholds = append([]ThresholdConfig(nil), fc.Monitor.Thresholds...)
		}
	}
	if fc.Storage != nil {
		cfg.Storage = mergeStorage(cfg.Storage, *fc.Storage)
	}
	if fc.Client != nil {
		cfg.Client = mergeClient(cfg.Client, *fc.Client)
	}
	if fc.Log != nil {
		if strings.TrimSpace(fc.Log.Level) != "" {
			cfg.Log.Level = fc.Log.Level
		}
		if strings.TrimSpace(fc.Log.Format) != "" {
			cfg.Log.Format = fc.Log.Format
		}
		if strings.TrimSpace(fc.Log.File) != "" {
			cfg.Log.File = fc.Log.File
		}
	}
	if fc.SystemPrompt != nil {
		cfg.SystemPrompt = *fc.SystemPrompt
	}
	if fc.HistoryTokenBudget != nil {
		cfg.HistoryTokenBudget = *fc.HistoryTokenBudget
	}
}

func mergeProvider(base ProviderConfig, override fileProviderConfig) ProviderConfig {
	if strings.TrimSpace(override.Name) != "" {
		base.Name = override.Name
		// 切换 provider 时同时切换默认模型
		// Switching provider also switches the default model unless one is given.
		if strings.TrimSpace(override.Model) == "" {
			base.Model = defaultModelFor(override.Name)
		}
	}
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if strings.TrimSpace(override.Model) != "" {
		base.Model = override.Model
	}
	if strings.TrimSpace(override.APIKey) != "" {
		base.APIKey = override.APIKey
	}
	if override.MaxTokens > 0 {
		base.MaxTokens = override.MaxTokens
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	if override.MaxRetries != nil {
		base.MaxRetries = *override.MaxRetries
	}
	return base
}

func mergeServer(base, override ServerConfig) ServerConfig {
	if strings.TrimSpace(override.Addr) != "" {
		base.Addr = override.Addr
	}
	if override.MaxBodyBytes > 0 {
		base.MaxBodyBytes = override.MaxBodyBytes
	}
	if override.ReadTimeoutMS > 0 {
		base.ReadTimeoutMS = override.ReadTimeoutMS
	}
	if override.WriteTimeoutMS > 0 {
		base.WriteTimeoutMS = override.WriteTimeoutMS
	}
	if override.RequestTimeoutMS > 0 {
		base.RequestTimeoutMS = override.RequestTimeoutMS
	}
	return base
}

func mergeQuota(base, override QuotaConfig) QuotaConfig {
	if override.MaxStorageBytes > 0 {
		base.MaxStorageBytes = override.MaxStorageBytes
	}
	if override.MaxSessions > 0 {
		base.MaxSessions = override.MaxSessions
	}
	if override.MaxMessagesPerSession > 0 {
		base.MaxMessagesPerSession = override.MaxMessagesPerSession
	}
	if override.MaxAttachmentBytes > 0 {
		base.MaxAttachmentBytes = override.MaxAttachmentBytes
	}
	return base
}

func mergeStorage(base, override StorageConfig) StorageConfig {
	if strings.TrimSpace(override.BaseDir) != "" {
		base.BaseDir = override.BaseDir
	}
	if strings.TrimSpace(override.Backend) != "" {
		base.Backend = override.Backend
	}
	if strings.TrimSpace(override.ClientID) != "" {
		base.ClientID = override.ClientID
	}
	return base
}

func mergeClient(base, override ClientConfig) ClientConfig {
	if strings.TrimSpace(override.ServerURL) != "" {
		base.ServerURL = override.ServerURL
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	if strings.TrimSpace(override.Locale) != "" {
		base.Locale = override.Locale
	}
	if strings.TrimSpace(override.Layout) != "" {
		base.Layout = override.Layout
	}
	return base
}

func applyEnv(cfg *Config) {
	if v := env("ASSISTANT_PROVIDER"); v != "" {
		cfg.Provider = mergeProvider(cfg.Provider, fileProviderConfig{Name: v})
	}
	if v := env("ASSISTANT_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := env("ASSISTANT_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if cfg.Provider.APIKey == "" {
		switch strings.ToLower(strings.TrimSpace(cfg.Provider.Name)) {
		case "openai":
			cfg.Provider.APIKey = env("OPENAI_API_KEY")
		default:
			cfg.Provider.APIKey = env("ANTHROPIC_API_KEY")
		}
	}
	if v := env("ASSISTANT_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := env("ASSISTANT_SERVER_URL"); v != "" {
		cfg.Client.ServerURL = v
	}
	if v := env("ASSISTANT_DATA_DIR"); v != "" {
		cfg.Storage.BaseDir = v
	}
	if v := env("ASSISTANT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := env("ASSISTANT_LOCALE"); v != "" {
		cfg.Client.Locale = v
	}
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// normalize 将非法值回退为默认值
// normalize clamps invalid values back to their defaults.
func normalize(cfg *Config) {
	def := Default()

	cfg.Provider.Name = strings.ToLower(strings.TrimSpace(cfg.Provider.Name))
	if cfg.Provider.Name != "anthropic" && cfg.Provider.Name != "openai" {
		cfg.Provider.Name = def.Provider.Name
	}
	if strings.TrimSpace(cfg.Provider.Model) == "" {
		cfg.Provider.Model = defaultModelFor(cfg.Provider.Name)
	}
	if cfg.Provider.MaxTokens <= 0 {
		cfg.Provider.MaxTokens = def.Provider.MaxTokens
	}
	if cfg.Provider.TimeoutMS <= 0 {
		cfg.Provider.TimeoutMS = def.Provider.TimeoutMS
	}
	if cfg.Provider.MaxRetries < 0 {
		cfg.Provider.MaxRetries = def.Provider.MaxRetries
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = def.Server.MaxBodyBytes
	}
	if cfg.Server.ReadTimeoutMS <= 0 {
		cfg.Server.ReadTimeoutMS = def.Server.ReadTimeoutMS
	}
	if cfg.Server.WriteTimeoutMS <= 0 {
		cfg.Server.WriteTimeoutMS = def.Server.WriteTimeoutMS
	}
	if cfg.Server.RequestTimeoutMS < 0 {
		cfg.Server.RequestTimeoutMS = 0
	}

	cfg.Quota = mergeQuota(def.Quota, cfg.Quota)

	if cfg.Monitor.IntervalMS <= 0 {
		cfg.Monitor.IntervalMS = def.Monitor.IntervalMS
	}
	if cfg.Monitor.EvictBatch <= 0 {
		cfg.Monitor.EvictBatch = def.Monitor.EvictBatch
	}
	valid := cfg.Monitor.Thresholds[:0:0]
	for _, th := range cfg.Monitor.Thresholds {
		th.Level = strings.ToLower(strings.TrimSpace(th.Level))
		if (th.Level != "soft" && th.Level != "critical") || th.Percent <= 0 || th.Percent > 100 {
			continue
		}
		if th.SuppressMinutes < 0 {
			th.SuppressMinutes = 0
		}
		valid = append(valid, th)
	}
	if len(valid) == 0 {
		valid = def.Monitor.Thresholds
	}
	cfg.Monitor.Thresholds = valid

	if strings.TrimSpace(cfg.Storage.BaseDir) == "" {
		cfg.Storage.BaseDir = def.Storage.BaseDir
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend != "sqlite" && cfg.Storage.Backend != "file" {
		cfg.Storage.Backend = def.Storage.Backend
	}
	if strings.TrimSpace(cfg.Storage.ClientID) == "" {
		cfg.Storage.ClientID = def.Storage.ClientID
	}

	if strings.TrimSpace(cfg.Client.ServerURL) == "" {
		cfg.Client.ServerURL = def.Client.ServerURL
	}
	if cfg.Client.TimeoutMS <= 0 {
		cfg.Client.TimeoutMS = def.Client.TimeoutMS
	}
	if strings.TrimSpace(cfg.Client.Locale) == "" {
		cfg.Client.Locale = def.Client.Locale
	}
	if cfg.Client.Layout != "floating" && cfg.Client.Layout != "sidebar" {
		cfg.Client.Layout = def.Client.Layout
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Log.Format)) {
	case "text", "json", "logfmt":
		cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	default:
		cfg.Log.Format = def.Log.Format
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.HistoryTokenBudget < 0 {
		cfg.HistoryTokenBudget = 0
	}
}

func defaultModelFor(name string) string {
	if strings.EqualFold(strings.TrimSpace(name), "openai") {
		return DefaultOpenAIModel
	}
	return DefaultAnthropicModel
}

// DataDir 返回展开后的数据目录
// DataDir returns the expanded storage base directory.
func (c Config) DataDir() (string, error) {
	return expandPath(c.Storage.BaseDir)
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "resolve home dir")
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}
