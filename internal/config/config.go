/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"

	"github.com/loqalabs/loqa-subtitles/internal/security"
)

// ErrMissingStreamURL is returned when neither --url nor STREAM_URL names an audio source
var ErrMissingStreamURL = errors.New("stream URL must be provided")

// Config holds all configuration for the subtitle service
type Config struct {
	Server     ServerConfig
	Stream     StreamConfig
	Recognizer RecognizerConfig
	Segment    SegmentConfig
	Translate  TranslateConfig
	TTS        TTSConfig
	NATS       NATSConfig
	Archive    ArchiveConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP and websocket settings
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	SubtitleFormat  string // "json" or "text"
	ClientQueueSize int
	AllowedOrigins  []string // empty allows any origin
	HistorySize     int
}

// StreamConfig describes the upstream audio source
type StreamConfig struct {
	URL               string
	ID                string
	FFmpegPath        string
	SampleRate        int
	ChunkBytes        int
	ReconnectInitial  time.Duration
	ReconnectMax      time.Duration
	ReconnectAttempts int // 0 retries forever
}

// RecognizerConfig selects and tunes the speech recognizer
type RecognizerConfig struct {
	Engine          string // "http" or "whisper"
	URL             string // OpenAI-compatible STT service
	ModelPath       string // whisper.cpp model file
	Language        string // empty lets the engine detect
	Temperature     float32
	Timeout         time.Duration
	MinConfidence   float64
	SpeechThreshold float64 // RMS energy above which a chunk counts as speech
	SilenceDuration time.Duration
	MaxUtterance    time.Duration
}

// SegmentConfig holds the buffering thresholds
type SegmentConfig struct {
	MinWords         int
	MaxWords         int
	PauseThreshold   time.Duration
	RepeatSimilarity float64 // 0 disables repeat suppression
}

// TranslateConfig configures the translation dispatcher
type TranslateConfig struct {
	Target              string
	DefaultSource       string
	DetectMinConfidence float64
	Providers           []string
	ProviderTimeout     time.Duration
	LibreTranslateURL   string
	LibreTranslateKey   string
	GoogleURL           string
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	OpenAIModel         string
	CacheSize           int
	CacheTTL            time.Duration
	ContextSize         int
	GlossaryFile        string
	LexiconFile         string
}

// TTSConfig holds Text-to-Speech service configuration
type TTSConfig struct {
	Enabled        bool
	URL            string  // REST API URL for an OpenAI-compatible TTS service such as Kokoro
	Voice          string  // Voice to use (e.g., "af_bella")
	Speed          float32 // Speech speed (1.0 = normal)
	ResponseFormat string  // Audio format (mp3, wav, opus, flac)
	MaxConcurrent  int
	Timeout        time.Duration
	QueueSize      int
	PlayerCommand  string
}

// NATSConfig holds NATS messaging configuration
type NATSConfig struct {
	URL           string // empty disables publishing
	SubjectPrefix string
	MaxReconnect  int
	ReconnectWait time.Duration
}

// ArchiveConfig holds the optional subtitle archive settings
type ArchiveConfig struct {
	Path          string // empty disables the archive
	Retention     time.Duration
	PruneSchedule string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Option overrides configuration after environment variables are read
type Option func(*Config)

// WithStreamURL sets the audio source
func WithStreamURL(url string) Option {
	return func(c *Config) {
		if url != "" {
			c.Stream.URL = url
		}
	}
}

// WithPort sets the websocket server port
func WithPort(port int) Option {
	return func(c *Config) {
		if port > 0 {
			c.Server.Port = port
		}
	}
}

// WithTarget sets the translation target language
func WithTarget(target string) Option {
	return func(c *Config) {
		if target != "" {
			c.Translate.Target = target
		}
	}
}

// WithWhisperModel switches the recognizer to a local whisper.cpp model
func WithWhisperModel(path string) Option {
	return func(c *Config) {
		if path != "" {
			c.Recognizer.Engine = "whisper"
			c.Recognizer.ModelPath = path
		}
	}
}

// WithSTTURL points the HTTP recognizer at another service
func WithSTTURL(url string) Option {
	return func(c *Config) {
		if url != "" {
			c.Recognizer.URL = url
		}
	}
}

// WithTTS turns speech output on
func WithTTS(enabled bool) Option {
	return func(c *Config) {
		if enabled {
			c.TTS.Enabled = true
		}
	}
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error; variables already set are left untouched.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from environment variables with defaults
func Load(opts ...Option) (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:            getEnvString("LOQA_HOST", "0.0.0.0"),
			Port:            getEnvInt("LOQA_PORT", 8000),
			ReadTimeout:     getEnvDuration("LOQA_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("LOQA_WRITE_TIMEOUT", 30*time.Second),
			SubtitleFormat:  getEnvString("SUBTITLE_FORMAT", "json"),
			ClientQueueSize: getEnvInt("WS_CLIENT_QUEUE", 16),
			AllowedOrigins:  getEnvList("WS_ALLOWED_ORIGINS", nil),
			HistorySize:     getEnvInt("SUBTITLE_HISTORY", 50),
		},
		Stream: StreamConfig{
			URL:               getEnvString("STREAM_URL", ""),
			ID:                getEnvString("STREAM_ID", "main"),
			FFmpegPath:        getEnvString("FFMPEG_PATH", "ffmpeg"),
			SampleRate:        getEnvInt("AUDIO_SAMPLE_RATE", 16000),
			ChunkBytes:        getEnvInt("AUDIO_CHUNK_BYTES", 8000),
			ReconnectInitial:  getEnvDuration("STREAM_RECONNECT_INITIAL", time.Second),
			ReconnectMax:      getEnvDuration("STREAM_RECONNECT_MAX", 30*time.Second),
			ReconnectAttempts: getEnvInt("STREAM_RECONNECT_ATTEMPTS", 5),
		},
		Recognizer: RecognizerConfig{
			Engine:          getEnvString("STT_ENGINE", "http"),
			URL:             getEnvString("STT_URL", "http://stt:8000"),
			ModelPath:       getEnvString("WHISPER_MODEL_PATH", ""),
			Language:        getEnvString("STT_LANGUAGE", ""),
			Temperature:     getEnvFloat32("STT_TEMPERATURE", 0.0),
			Timeout:         getEnvDuration("STT_TIMEOUT", 30*time.Second),
			MinConfidence:   getEnvFloat("STT_MIN_CONFIDENCE", 0),
			SpeechThreshold: getEnvFloat("VAD_SPEECH_THRESHOLD", 500),
			SilenceDuration: getEnvDuration("VAD_SILENCE_DURATION", 600*time.Millisecond),
			MaxUtterance:    getEnvDuration("VAD_MAX_UTTERANCE", 10*time.Second),
		},
		Segment: SegmentConfig{
			MinWords:         getEnvInt("SEGMENT_MIN_WORDS", 3),
			MaxWords:         getEnvInt("SEGMENT_MAX_WORDS", 15),
			PauseThreshold:   getEnvDuration("SEGMENT_PAUSE", 1200*time.Millisecond),
			RepeatSimilarity: getEnvFloat("SEGMENT_REPEAT_SIMILARITY", 0.9),
		},
		Translate: TranslateConfig{
			Target:              getEnvString("TRANSLATE_TARGET", "tr"),
			DefaultSource:       getEnvString("TRANSLATE_DEFAULT_SOURCE", "en"),
			DetectMinConfidence: getEnvFloat("LANGID_MIN_CONFIDENCE", 0.5),
			Providers:           getEnvList("TRANSLATE_PROVIDERS", []string{"libretranslate", "google"}),
			ProviderTimeout:     getEnvDuration("TRANSLATE_TIMEOUT", 3*time.Second),
			LibreTranslateURL:   getEnvString("LIBRETRANSLATE_URL", "https://libretranslate.de/translate"),
			LibreTranslateKey:   getEnvString("LIBRETRANSLATE_API_KEY", ""),
			GoogleURL:           getEnvString("GOOGLE_TRANSLATE_URL", "https://translate.googleapis.com/translate_a/single"),
			OpenAIAPIKey:        getEnvString("OPENAI_API_KEY", ""),
			OpenAIBaseURL:       getEnvString("OPENAI_BASE_URL", ""),
			OpenAIModel:         getEnvString("OPENAI_MODEL", "gpt-4o-mini"),
			CacheSize:           getEnvInt("TRANSLATE_CACHE_SIZE", 3000),
			CacheTTL:            getEnvDuration("TRANSLATE_CACHE_TTL", 8*time.Hour),
			ContextSize:         getEnvInt("TRANSLATE_CONTEXT_SIZE", 3),
			GlossaryFile:        getEnvString("GLOSSARY_FILE", ""),
			LexiconFile:         getEnvString("LEXICON_FILE", ""),
		},
		TTS: TTSConfig{
			Enabled:        getEnvBool("TTS_ENABLED", false),
			URL:            getEnvString("KOKORO_TTS_URL", "http://localhost:8880/v1"),
			Voice:          getEnvString("KOKORO_TTS_VOICE", "af_bella"),
			Speed:          getEnvFloat32("KOKORO_TTS_SPEED", 1.0),
			ResponseFormat: getEnvString("KOKORO_TTS_FORMAT", "mp3"),
			MaxConcurrent:  getEnvInt("KOKORO_TTS_MAX_CONCURRENT", 2),
			Timeout:        getEnvDuration("KOKORO_TTS_TIMEOUT", 10*time.Second),
			QueueSize:      getEnvInt("TTS_QUEUE_SIZE", 5),
			PlayerCommand:  getEnvString("TTS_PLAYER", "mpg123 -q -"),
		},
		NATS: NATSConfig{
			URL:           getEnvString("NATS_URL", ""),
			SubjectPrefix: getEnvString("NATS_SUBJECT_PREFIX", "loqa.subtitles"),
			MaxReconnect:  getEnvInt("NATS_MAX_RECONNECT", -1),
			ReconnectWait: getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		},
		Archive: ArchiveConfig{
			Path:          getEnvString("ARCHIVE_PATH", ""),
			Retention:     getEnvDuration("ARCHIVE_RETENTION", 7*24*time.Hour),
			PruneSchedule: getEnvString("ARCHIVE_PRUNE_SCHEDULE", "@hourly"),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Server.SubtitleFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported subtitle format: %q", c.Server.SubtitleFormat)
	}

	if c.Server.ClientQueueSize <= 0 {
		return fmt.Errorf("websocket client queue must be positive: %d", c.Server.ClientQueueSize)
	}

	if c.Stream.URL == "" {
		return ErrMissingStreamURL
	}

	if err := security.ValidateStreamID(c.Stream.ID); err != nil {
		return fmt.Errorf("stream id %q: %w", c.Stream.ID, err)
	}

	if c.Stream.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive: %d", c.Stream.SampleRate)
	}

	// s16le frames are two bytes wide
	if c.Stream.ChunkBytes <= 0 || c.Stream.ChunkBytes%2 != 0 {
		return fmt.Errorf("chunk size must be a positive even number of bytes: %d", c.Stream.ChunkBytes)
	}

	if c.Stream.ReconnectInitial <= 0 || c.Stream.ReconnectMax < c.Stream.ReconnectInitial {
		return fmt.Errorf("invalid reconnect backoff: initial %s, max %s", c.Stream.ReconnectInitial, c.Stream.ReconnectMax)
	}

	switch c.Recognizer.Engine {
	case "http":
		if c.Recognizer.URL == "" {
			return fmt.Errorf("STT URL must be provided")
		}
	case "whisper":
		if c.Recognizer.ModelPath == "" {
			return fmt.Errorf("whisper model path must be provided")
		}
	default:
		return fmt.Errorf("unsupported recognizer engine: %q", c.Recognizer.Engine)
	}

	if c.Segment.MinWords < 1 {
		return fmt.Errorf("segment min words must be at least 1: %d", c.Segment.MinWords)
	}

	if c.Segment.MaxWords < c.Segment.MinWords {
		return fmt.Errorf("segment max words (%d) must not be below min words (%d)", c.Segment.MaxWords, c.Segment.MinWords)
	}

	if c.Segment.PauseThreshold <= 0 {
		return fmt.Errorf("segment pause threshold must be positive: %s", c.Segment.PauseThreshold)
	}

	if c.Segment.RepeatSimilarity < 0 || c.Segment.RepeatSimilarity > 1 {
		return fmt.Errorf("repeat similarity must be within [0,1]: %f", c.Segment.RepeatSimilarity)
	}

	if _, err := language.Parse(c.Translate.Target); err != nil {
		return fmt.Errorf("invalid target language %q: %w", c.Translate.Target, err)
	}

	if _, err := language.Parse(c.Translate.DefaultSource); err != nil {
		return fmt.Errorf("invalid default source language %q: %w", c.Translate.DefaultSource, err)
	}

	for _, p := range c.Translate.Providers {
		switch p {
		case "libretranslate", "google":
		case "openai":
			if c.Translate.OpenAIAPIKey == "" {
				return fmt.Errorf("openai provider requires OPENAI_API_KEY")
			}
		default:
			return fmt.Errorf("unknown translation provider: %q", p)
		}
	}

	if c.Translate.ProviderTimeout <= 0 {
		return fmt.Errorf("translation timeout must be positive: %s", c.Translate.ProviderTimeout)
	}

	if c.Translate.CacheSize <= 0 {
		return fmt.Errorf("translation cache size must be positive: %d", c.Translate.CacheSize)
	}

	if c.Translate.ContextSize < 2 || c.Translate.ContextSize > 5 {
		return fmt.Errorf("translation context size must be between 2 and 5: %d", c.Translate.ContextSize)
	}

	if c.TTS.Enabled {
		if c.TTS.URL == "" {
			return fmt.Errorf("TTS URL must be provided")
		}
		if c.TTS.Speed <= 0 {
			return fmt.Errorf("TTS speed must be positive: %f", c.TTS.Speed)
		}
		if c.TTS.QueueSize <= 0 {
			return fmt.Errorf("TTS queue size must be positive: %d", c.TTS.QueueSize)
		}
		if c.TTS.MaxConcurrent <= 0 {
			return fmt.Errorf("TTS max concurrent must be positive: %d", c.TTS.MaxConcurrent)
		}
		if strings.TrimSpace(c.TTS.PlayerCommand) == "" {
			return fmt.Errorf("TTS player command must be provided")
		}
	}

	if c.Archive.Path != "" && c.Archive.Retention <= 0 {
		return fmt.Errorf("archive retention must be positive: %s", c.Archive.Retention)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatValue)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
