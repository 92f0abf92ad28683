package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all coach-engine environment variables.
const EnvPrefix = "GBACK_COACH_"

const (
	defaultConnectTimeout = 15 * time.Second
	defaultBackupInterval = 5 * time.Minute
)

// Messages are the user-facing strings. Empty values fall back to the
// built-in English text.
type Messages struct {
	Greeting        string `yaml:"greeting"`
	HighPainAlert   string `yaml:"high_pain_alert"`
	MicError        string `yaml:"mic_error"`
	DeviceError     string `yaml:"device_error"`
	ConnectionLost  string `yaml:"connection_lost"`
	ConnectionError string `yaml:"connection_error"`
	ToolFallback    string `yaml:"tool_fallback"`
}

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr         string   `yaml:"listen_addr"`
	DBPath             string   `yaml:"db_path"`
	CatalogFile        string   `yaml:"catalog_file"`
	Language           string   `yaml:"language"`
	ChatModel          string   `yaml:"chat_model"`
	LiveModel          string   `yaml:"live_model"`
	Voice              string   `yaml:"voice"`
	FrameSize          int      `yaml:"frame_size"`
	MicSampleRate      int      `yaml:"mic_sample_rate"`
	MicSampleRates     []int    `yaml:"mic_sample_rates"`
	PlaybackSampleRate int      `yaml:"playback_sample_rate"`
	Headless           bool     `yaml:"headless"`
	ConnectTimeout     string   `yaml:"connect_timeout"`
	HighPainThreshold  int      `yaml:"high_pain_threshold"`
	RecordDir          string   `yaml:"record_dir"`
	DeepgramModel      string   `yaml:"deepgram_model"`
	DeepgramLanguage   string   `yaml:"deepgram_language"`
	GDriveFolderID     string   `yaml:"gdrive_folder_id"`
	GoogleCredsFile    string   `yaml:"google_credentials_file"`
	BackupInterval     string   `yaml:"backup_interval"`
	Messages           Messages `yaml:"messages"`

	// Secrets, env vars only.
	GeminiAPIKey    string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	DeepgramAPIKey  string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:         ":8080",
		DBPath:             "data/coach-engine.db",
		Language:           "en",
		ChatModel:          "gemini/gemini-2.5-flash",
		LiveModel:          "gemini-2.5-flash-native-audio-preview-09-2025",
		Voice:              "Zephyr",
		FrameSize:          4096,
		MicSampleRate:      16000,
		MicSampleRates:     []int{48000, 44100, 32000, 24000},
		PlaybackSampleRate: 24000,
		ConnectTimeout:     "15s",
		HighPainThreshold:  7,
		DeepgramModel:      "nova-2",
		DeepgramLanguage:   "en-US",
		GoogleCredsFile:    "./service-account.json",
		BackupInterval:     "5m",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

func (c *Config) ParsedConnectTimeout() time.Duration {
	return parseDuration(c.ConnectTimeout, defaultConnectTimeout)
}

func (c *Config) ParsedBackupInterval() time.Duration {
	return parseDuration(c.BackupInterval, defaultBackupInterval)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// SampleRateCandidates returns a deduplicated ordered list of sample rates
// to try: preferred rate first, then configured alternatives, then defaults.
func (c *Config) SampleRateCandidates() []int {
	hardcoded := []int{16000, 48000, 44100, 32000, 24000}

	combined := make([]int, 0, 1+len(c.MicSampleRates)+len(hardcoded))
	combined = append(combined, c.MicSampleRate)
	combined = append(combined, c.MicSampleRates...)
	combined = append(combined, hardcoded...)

	seen := make(map[int]struct{}, len(combined))
	result := make([]int, 0, len(combined))
	for _, rate := range combined {
		if rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}
	return result
}

// ChatProvider is the provider half of ChatModel.
func (c *Config) ChatProvider() string {
	provider, _, _ := strings.Cut(c.ChatModel, "/")
	return strings.ToLower(strings.TrimSpace(provider))
}

// ChatAPIKey returns the key for the configured chat provider.
func (c *Config) ChatAPIKey() string {
	switch c.ChatProvider() {
	case "gemini":
		return c.GeminiAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	default:
		return ""
	}
}

func applyEnvOverrides(cfg *Config) {
	strs := map[string]*string{
		"LISTEN_ADDR":             &cfg.ListenAddr,
		"DB_PATH":                 &cfg.DBPath,
		"CATALOG_FILE":            &cfg.CatalogFile,
		"LANGUAGE":                &cfg.Language,
		"CHAT_MODEL":              &cfg.ChatModel,
		"LIVE_MODEL":              &cfg.LiveModel,
		"VOICE":                   &cfg.Voice,
		"CONNECT_TIMEOUT":         &cfg.ConnectTimeout,
		"RECORD_DIR":              &cfg.RecordDir,
		"DEEPGRAM_MODEL":          &cfg.DeepgramModel,
		"DEEPGRAM_LANGUAGE":       &cfg.DeepgramLanguage,
		"GDRIVE_FOLDER_ID":        &cfg.GDriveFolderID,
		"GOOGLE_CREDENTIALS_FILE": &cfg.GoogleCredsFile,
		"BACKUP_INTERVAL":         &cfg.BackupInterval,
	}
	for key, dst := range strs {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"FRAME_SIZE":           &cfg.FrameSize,
		"MIC_SAMPLE_RATE":      &cfg.MicSampleRate,
		"PLAYBACK_SAMPLE_RATE": &cfg.PlaybackSampleRate,
		"HIGH_PAIN_THRESHOLD":  &cfg.HighPainThreshold,
	}
	for key, dst := range ints {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				*dst = n
			}
		}
	}

	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATES"); v != "" {
		cfg.MicSampleRates = parseSampleRates(v)
	}
	if v := os.Getenv(EnvPrefix + "HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Headless = b
		}
	}
}

// loadSecrets prefers the prefixed variable and falls back to the
// provider's conventional name.
func loadSecrets(cfg *Config) {
	cfg.GeminiAPIKey = secret("GEMINI_API_KEY")
	cfg.OpenAIAPIKey = secret("OPENAI_API_KEY")
	cfg.AnthropicAPIKey = secret("ANTHROPIC_API_KEY")
	cfg.DeepgramAPIKey = secret("DEEPGRAM_API_KEY")
}

func secret(name string) string {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		return v
	}
	return os.Getenv(name)
}

func validate(cfg *Config) []string {
	var warnings []string

	switch cfg.ChatProvider() {
	case "gemini", "openai", "anthropic":
		if cfg.ChatAPIKey() == "" {
			warnings = append(warnings, fmt.Sprintf("No API key for chat provider %q. Text chat is disabled.", cfg.ChatProvider()))
		}
	default:
		warnings = append(warnings, fmt.Sprintf("Invalid chat_model %q. Expected provider/model with provider gemini, openai or anthropic.", cfg.ChatModel))
	}
	if cfg.GeminiAPIKey == "" {
		warnings = append(warnings, "Gemini API key not configured. Voice mode is disabled. Set GEMINI_API_KEY.")
	}
	if cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram API key not configured. Spoken user turns will not be transcribed. Set DEEPGRAM_API_KEY.")
	}
	if d, err := time.ParseDuration(cfg.ConnectTimeout); err != nil || d <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid connect_timeout %q. Using default %s.", cfg.ConnectTimeout, defaultConnectTimeout))
	}
	if d, err := time.ParseDuration(cfg.BackupInterval); err != nil || d <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid backup_interval %q. Using default %s.", cfg.BackupInterval, defaultBackupInterval))
	}
	if cfg.HighPainThreshold < 1 || cfg.HighPainThreshold > 10 {
		warnings = append(warnings, fmt.Sprintf("Invalid high_pain_threshold %d. Using 7.", cfg.HighPainThreshold))
		cfg.HighPainThreshold = 7
	}
	switch strings.ToLower(cfg.Language) {
	case "en", "ar":
	default:
		warnings = append(warnings, fmt.Sprintf("Unsupported language %q. Using en.", cfg.Language))
		cfg.Language = "en"
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = 4096
	}

	return warnings
}

func parseSampleRates(raw string) []int {
	parts := strings.Split(raw, ",")
	seen := make(map[int]struct{}, len(parts))
	result := make([]int, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		rate, err := strconv.Atoi(trimmed)
		if err != nil || rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}

	return result
}
