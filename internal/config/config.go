package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the receptionist service.
type Config struct {
	BindAddr        string
	ShutdownTimeout time.Duration

	MetricsNamespace string

	// LiveKit credentials. Deliberately not validated at load time: the token
	// route answers 500 per-request while they are missing and the process
	// must still start.
	LiveKitURL       string
	LiveKitAPIKey    string
	LiveKitAPISecret string

	AgentName string

	// Base URL of the inference gateway hosting the STT/LLM/TTS plugins.
	InferenceURL string

	STTModel string
	LLMModel string
	TTSModel string
	TTSVoice string

	TokenTTL             time.Duration
	PreemptiveGeneration bool
	NoiseCancellation    bool
	MinEndpointingDelay  time.Duration
}

// Load reads environment variables and applies safe defaults. A .env file in
// the working directory is consulted for keys absent from the environment.
func Load() (Config, error) {
	loadDotEnvOnce()

	cfg := Config{
		BindAddr:         ":" + envOrDefault("PORT", "8080"),
		MetricsNamespace: envOrDefault("FRONTDESK_METRICS_NAMESPACE", "frontdesk"),
		LiveKitURL:       trimmedEnv("LIVEKIT_URL"),
		LiveKitAPIKey:    trimmedEnv("LIVEKIT_API_KEY"),
		LiveKitAPISecret: trimmedEnv("LIVEKIT_API_SECRET"),
		AgentName:        envOrDefault("FRONTDESK_AGENT_NAME", "frontdesk"),
		InferenceURL:     envOrDefault("FRONTDESK_INFERENCE_URL", "http://localhost:9090"),
		STTModel:         envOrDefault("FRONTDESK_STT_MODEL", "deepgram/nova-3"),
		LLMModel:         envOrDefault("FRONTDESK_LLM_MODEL", "openai/gpt-4o-mini"),
		TTSModel:         envOrDefault("FRONTDESK_TTS_MODEL", "cartesia/sonic-2"),
		// Default to a warm, professional voice for the front desk.
		TTSVoice: envOrDefault("FRONTDESK_TTS_VOICE", "794f9389-aac1-45b6-b726-9d9369183238"),

		TokenTTL:             6 * time.Hour,
		ShutdownTimeout:      15 * time.Second,
		PreemptiveGeneration: true,
		NoiseCancellation:    true,
		MinEndpointingDelay:  500 * time.Millisecond,
	}

	var err error
	cfg.TokenTTL, err = durationFromEnv("FRONTDESK_TOKEN_TTL", cfg.TokenTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownTimeout, err = durationFromEnv("FRONTDESK_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MinEndpointingDelay, err = durationFromEnv("FRONTDESK_MIN_ENDPOINTING_DELAY", cfg.MinEndpointingDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.PreemptiveGeneration, err = boolFromEnv("FRONTDESK_PREEMPTIVE_GENERATION", cfg.PreemptiveGeneration)
	if err != nil {
		return Config{}, err
	}
	cfg.NoiseCancellation, err = boolFromEnv("FRONTDESK_NOISE_CANCELLATION", cfg.NoiseCancellation)
	if err != nil {
		return Config{}, err
	}

	if port := strings.TrimPrefix(cfg.BindAddr, ":"); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return Config{}, fmt.Errorf("PORT parse error: %w", err)
		}
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("FRONTDESK_TOKEN_TTL must be positive")
	}
	if cfg.MinEndpointingDelay < 0 {
		return Config{}, fmt.Errorf("FRONTDESK_MIN_ENDPOINTING_DELAY must be >= 0")
	}
	if strings.TrimSpace(cfg.AgentName) == "" {
		return Config{}, fmt.Errorf("FRONTDESK_AGENT_NAME must not be empty")
	}

	return cfg, nil
}

// HasLiveKitCredentials reports whether all three LiveKit settings are present.
func (c Config) HasLiveKitCredentials() bool {
	return c.LiveKitURL != "" && c.LiveKitAPIKey != "" && c.LiveKitAPISecret != ""
}

// MissingLiveKitCredentials names the absent LiveKit settings, for error bodies.
func (c Config) MissingLiveKitCredentials() []string {
	var missing []string
	if c.LiveKitURL == "" {
		missing = append(missing, "LIVEKIT_URL")
	}
	if c.LiveKitAPIKey == "" {
		missing = append(missing, "LIVEKIT_API_KEY")
	}
	if c.LiveKitAPISecret == "" {
		missing = append(missing, "LIVEKIT_API_SECRET")
	}
	return missing
}

func envOrDefault(key, fallback string) string {
	v := lookupEnv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(lookupEnv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
