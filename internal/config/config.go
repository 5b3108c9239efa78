package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process configuration.
type Config struct {
	HTTPAddress string
	BaseURL     string
	// AuthPassword guards the /api routes when set.
	AuthPassword string

	TwilioAccountSID string
	TwilioAuthToken  string
	ForwardNumber    string

	GeminiKey     string
	GeminiModel   string
	GeminiBaseURL string

	CerebrasKey     string
	CerebrasModelID string

	ElevenLabsKey     string
	ElevenLabsVoiceID string
	DeepgramKey       string
	DeepgramModel     string

	DatabaseDSN  string
	CacheDir     string
	PromptDir    string
	RecordingDir string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string

	SettingsFile  string
	Retention     time.Duration
	SweepSchedule string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg := Config{
		HTTPAddress:            getEnv("HTTP_ADDRESS", ":8080"),
		BaseURL:                os.Getenv("BASE_URL"),
		AuthPassword:           os.Getenv("AUTH_PASSWORD"),
		TwilioAccountSID:       os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:        os.Getenv("TWILIO_AUTH_TOKEN"),
		ForwardNumber:          os.Getenv("FORWARD_NUMBER"),
		GeminiKey:              os.Getenv("GEMINI_API_KEY"),
		GeminiModel:            getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiBaseURL:          getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		CerebrasKey:            os.Getenv("CEREBRAS_API_KEY"),
		CerebrasModelID:        getEnv("CEREBRAS_MODEL_ID", "gpt-oss-120b"),
		ElevenLabsKey:          os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID:      os.Getenv("ELEVENLABS_VOICE_ID"),
		DeepgramKey:            os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramModel:          getEnv("DEEPGRAM_MODEL", "aura-2-thalia-en"),
		DatabaseDSN:            getEnv("DATABASE_DSN", "callscreen.db"),
		CacheDir:               os.Getenv("CACHE_DIR"),
		PromptDir:              getEnv("PROMPT_DIR", "prompts"),
		RecordingDir:           getEnv("RECORDING_DIR", "recordings"),
		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:         getEnv("SUPABASE_BUCKET", "screening-recordings"),
		SettingsFile:           getEnv("SETTINGS_FILE", "settings.yaml"),
		Retention:              time.Duration(getEnvInt("RETENTION_DAYS", 30)) * 24 * time.Hour,
		SweepSchedule:          getEnv("SWEEP_SCHEDULE", "0 3 * * *"),
	}

	if cfg.GeminiKey == "" {
		log.Println("Warning: GEMINI_API_KEY not set - classification will fall back to not-spam")
	}
	if cfg.TwilioAuthToken == "" {
		log.Println("Warning: TWILIO_AUTH_TOKEN not set - webhooks will be rejected")
	}
	if cfg.ElevenLabsKey == "" && cfg.DeepgramKey == "" {
		log.Println("Warning: neither ELEVENLABS_API_KEY nor DEEPGRAM_API_KEY set - silent screening prompts must be pre-rendered")
	}

	log.Printf("config: HTTP_ADDRESS=%s DATABASE_DSN=%s", cfg.HTTPAddress, cfg.DatabaseDSN)
	return cfg
}

// Defaults returns the runtime settings implied by the environment, used
// when no settings file is present.
func (c Config) Defaults() Settings {
	return Settings{
		SpamDetection:            getEnvBool("SPAM_DETECTION", true),
		Screening:                getEnvBool("SCREENING", false),
		Mode:                     ScreeningMode(getEnv("SCREENING_MODE", string(ModeSilent))),
		TestMode:                 getEnvBool("TEST_MODE", false),
		ScreeningDurationSeconds: getEnvInt("SCREENING_DURATION_SECONDS", DefaultScreeningSeconds),
	}.normalized()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %d", key, v, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %t", key, v, defaultValue)
		return defaultValue
	}
	return b
}
