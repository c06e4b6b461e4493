package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all Screenloom environment variables.
const EnvPrefix = "SCREENLOOM_"

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr            string `yaml:"listen_addr"`
	StorePath             string `yaml:"store_path"`
	RecordingsDir         string `yaml:"recordings_dir"`
	GeneratedDir          string `yaml:"generated_dir"`
	ExportsDir            string `yaml:"exports_dir"`
	ChunkJournalPath      string `yaml:"chunk_journal_path"`
	DeepgramModel         string `yaml:"deepgram_model"`
	RefinerModel          string `yaml:"refiner_model"`
	VoiceID               string `yaml:"voice_id"`
	TTSModel              string `yaml:"tts_model"`
	GatewayTimeout        string `yaml:"gateway_timeout"`
	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`

	// Secrets — env vars only, never serialized to YAML.
	DeepgramAPIKey   string `yaml:"-"`
	OpenAIAPIKey     string `yaml:"-"`
	GeminiAPIKey     string `yaml:"-"`
	ElevenLabsAPIKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:            "127.0.0.1:8000",
		StorePath:             "data/sessions.json",
		RecordingsDir:         "data/recordings",
		GeneratedDir:          "data/generated",
		ExportsDir:            "data/exports",
		ChunkJournalPath:      "data/chunks.db",
		DeepgramModel:         "nova-2",
		RefinerModel:          "gemini/gemini-2.5-flash",
		GatewayTimeout:        "5m",
		GoogleCredentialsFile: "./service-account.json",
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

// ParsedGatewayTimeout returns GatewayTimeout as a time.Duration,
// falling back to 5m if the value is invalid.
func (c *Config) ParsedGatewayTimeout() time.Duration {
	d, err := time.ParseDuration(c.GatewayTimeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv(EnvPrefix + "RECORDINGS_DIR"); v != "" {
		cfg.RecordingsDir = v
	}
	if v := os.Getenv(EnvPrefix + "GENERATED_DIR"); v != "" {
		cfg.GeneratedDir = v
	}
	if v := os.Getenv(EnvPrefix + "EXPORTS_DIR"); v != "" {
		cfg.ExportsDir = v
	}
	if v := os.Getenv(EnvPrefix + "CHUNK_JOURNAL_PATH"); v != "" {
		cfg.ChunkJournalPath = v
	}
	if v := os.Getenv(EnvPrefix + "DEEPGRAM_MODEL"); v != "" {
		cfg.DeepgramModel = v
	}
	if v := os.Getenv(EnvPrefix + "REFINER_MODEL"); v != "" {
		cfg.RefinerModel = v
	}
	if v := os.Getenv(EnvPrefix + "VOICE_ID"); v != "" {
		cfg.VoiceID = v
	}
	if v := os.Getenv(EnvPrefix + "TTS_MODEL"); v != "" {
		cfg.TTSModel = v
	}
	if v := os.Getenv(EnvPrefix + "GATEWAY_TIMEOUT"); v != "" {
		cfg.GatewayTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
	cfg.ElevenLabsAPIKey = os.Getenv(EnvPrefix + "ELEVENLABS_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram API key not configured — transcription is disabled. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
	}
	if cfg.GeminiAPIKey == "" && cfg.OpenAIAPIKey == "" {
		warnings = append(warnings, "No LLM API key configured — script refinement is disabled. Set "+EnvPrefix+"GEMINI_API_KEY or "+EnvPrefix+"OPENAI_API_KEY.")
	}
	if cfg.ElevenLabsAPIKey == "" {
		warnings = append(warnings, "ElevenLabs API key not configured — voice synthesis falls back to placeholder audio. Set "+EnvPrefix+"ELEVENLABS_API_KEY.")
	}
	if _, err := time.ParseDuration(cfg.GatewayTimeout); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid gateway_timeout %q — using default 5m.", cfg.GatewayTimeout))
	}

	return warnings
}
