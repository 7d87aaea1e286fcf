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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envVars = []string{
	"LOQA_HOST", "LOQA_PORT", "LOQA_READ_TIMEOUT", "LOQA_WRITE_TIMEOUT",
	"SUBTITLE_FORMAT", "WS_CLIENT_QUEUE", "WS_ALLOWED_ORIGINS", "SUBTITLE_HISTORY",
	"STREAM_URL", "STREAM_ID", "FFMPEG_PATH", "AUDIO_SAMPLE_RATE", "AUDIO_CHUNK_BYTES",
	"STREAM_RECONNECT_INITIAL", "STREAM_RECONNECT_MAX", "STREAM_RECONNECT_ATTEMPTS",
	"STT_ENGINE", "STT_URL", "WHISPER_MODEL_PATH", "STT_LANGUAGE", "STT_TEMPERATURE",
	"STT_TIMEOUT", "STT_MIN_CONFIDENCE", "VAD_SPEECH_THRESHOLD", "VAD_SILENCE_DURATION", "VAD_MAX_UTTERANCE",
	"SEGMENT_MIN_WORDS", "SEGMENT_MAX_WORDS", "SEGMENT_PAUSE", "SEGMENT_REPEAT_SIMILARITY",
	"TRANSLATE_TARGET", "TRANSLATE_DEFAULT_SOURCE", "LANGID_MIN_CONFIDENCE", "TRANSLATE_PROVIDERS",
	"TRANSLATE_TIMEOUT", "LIBRETRANSLATE_URL", "LIBRETRANSLATE_API_KEY", "GOOGLE_TRANSLATE_URL",
	"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL", "TRANSLATE_CACHE_SIZE", "TRANSLATE_CACHE_TTL",
	"TRANSLATE_CONTEXT_SIZE", "GLOSSARY_FILE", "LEXICON_FILE",
	"TTS_ENABLED", "KOKORO_TTS_URL", "KOKORO_TTS_VOICE", "KOKORO_TTS_SPEED", "KOKORO_TTS_FORMAT",
	"KOKORO_TTS_MAX_CONCURRENT", "KOKORO_TTS_TIMEOUT", "TTS_QUEUE_SIZE", "TTS_PLAYER",
	"NATS_URL", "NATS_SUBJECT_PREFIX", "NATS_MAX_RECONNECT", "NATS_RECONNECT_WAIT",
	"ARCHIVE_PATH", "ARCHIVE_RETENTION", "ARCHIVE_PRUNE_SCHEDULE",
	"LOG_LEVEL", "LOG_FORMAT",
}

// clearEnvVars blanks every variable Load reads; blank values fall back to defaults
func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, envVar := range envVars {
		t.Setenv(envVar, "")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnvVars(t)

	cfg, err := Load(WithStreamURL("https://radio.example.com/live"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8000)
	}
	if cfg.Server.SubtitleFormat != "json" {
		t.Errorf("Server.SubtitleFormat = %q, want %q", cfg.Server.SubtitleFormat, "json")
	}

	if cfg.Stream.SampleRate != 16000 {
		t.Errorf("Stream.SampleRate = %d, want %d", cfg.Stream.SampleRate, 16000)
	}
	if cfg.Stream.ID != "main" {
		t.Errorf("Stream.ID = %q, want %q", cfg.Stream.ID, "main")
	}
	if cfg.Stream.ReconnectMax != 30*time.Second {
		t.Errorf("Stream.ReconnectMax = %s, want 30s", cfg.Stream.ReconnectMax)
	}

	if cfg.Recognizer.Engine != "http" {
		t.Errorf("Recognizer.Engine = %q, want %q", cfg.Recognizer.Engine, "http")
	}

	if cfg.Segment.MinWords != 3 || cfg.Segment.MaxWords != 15 {
		t.Errorf("Segment words = %d/%d, want 3/15", cfg.Segment.MinWords, cfg.Segment.MaxWords)
	}
	if cfg.Segment.PauseThreshold != 1200*time.Millisecond {
		t.Errorf("Segment.PauseThreshold = %s, want 1.2s", cfg.Segment.PauseThreshold)
	}

	if cfg.Translate.Target != "tr" {
		t.Errorf("Translate.Target = %q, want %q", cfg.Translate.Target, "tr")
	}
	if strings.Join(cfg.Translate.Providers, ",") != "libretranslate,google" {
		t.Errorf("Translate.Providers = %v", cfg.Translate.Providers)
	}
	if cfg.Translate.CacheSize != 3000 || cfg.Translate.CacheTTL != 8*time.Hour {
		t.Errorf("Translate cache = %d/%s, want 3000/8h", cfg.Translate.CacheSize, cfg.Translate.CacheTTL)
	}

	if cfg.TTS.Enabled {
		t.Error("TTS should be disabled by default")
	}
	if cfg.TTS.QueueSize != 5 {
		t.Errorf("TTS.QueueSize = %d, want 5", cfg.TTS.QueueSize)
	}

	if cfg.NATS.URL != "" {
		t.Errorf("NATS.URL = %q, want empty", cfg.NATS.URL)
	}
	if cfg.Archive.Path != "" {
		t.Errorf("Archive.Path = %q, want empty", cfg.Archive.Path)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name: "Segmentation thresholds",
			envVars: map[string]string{
				"SEGMENT_MIN_WORDS": "8",
				"SEGMENT_MAX_WORDS": "50",
				"SEGMENT_PAUSE":     "2s",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Segment.MinWords != 8 || cfg.Segment.MaxWords != 50 {
					t.Errorf("Segment words = %d/%d, want 8/50", cfg.Segment.MinWords, cfg.Segment.MaxWords)
				}
				if cfg.Segment.PauseThreshold != 2*time.Second {
					t.Errorf("Segment.PauseThreshold = %s, want 2s", cfg.Segment.PauseThreshold)
				}
			},
		},
		{
			name: "Provider list is trimmed",
			envVars: map[string]string{
				"TRANSLATE_PROVIDERS": " google , openai ,",
				"OPENAI_API_KEY":      "sk-test",
			},
			validate: func(t *testing.T, cfg *Config) {
				if strings.Join(cfg.Translate.Providers, ",") != "google,openai" {
					t.Errorf("Translate.Providers = %v, want [google openai]", cfg.Translate.Providers)
				}
			},
		},
		{
			name: "Invalid numbers fall back to defaults",
			envVars: map[string]string{
				"LOQA_PORT":     "not-a-number",
				"SEGMENT_PAUSE": "soon",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != 8000 {
					t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
				}
				if cfg.Segment.PauseThreshold != 1200*time.Millisecond {
					t.Errorf("Segment.PauseThreshold = %s, want 1.2s", cfg.Segment.PauseThreshold)
				}
			},
		},
		{
			name: "Allowed origins",
			envVars: map[string]string{
				"WS_ALLOWED_ORIGINS": "https://a.example.com,https://b.example.com",
			},
			validate: func(t *testing.T, cfg *Config) {
				if len(cfg.Server.AllowedOrigins) != 2 {
					t.Errorf("Server.AllowedOrigins = %v, want 2 entries", cfg.Server.AllowedOrigins)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			t.Setenv("STREAM_URL", "https://radio.example.com/live")
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.validate(t, cfg)
		})
	}
}

func TestLoad_Options(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("STREAM_URL", "https://env.example.com/live")

	cfg, err := Load(
		WithStreamURL("https://flag.example.com/live"),
		WithPort(9001),
		WithTarget("de"),
		WithWhisperModel("/models/ggml-base.bin"),
		WithTTS(true),
	)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Stream.URL != "https://flag.example.com/live" {
		t.Errorf("Stream.URL = %q, flag should win over env", cfg.Stream.URL)
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("Server.Port = %d, want 9001", cfg.Server.Port)
	}
	if cfg.Translate.Target != "de" {
		t.Errorf("Translate.Target = %q, want de", cfg.Translate.Target)
	}
	if cfg.Recognizer.Engine != "whisper" || cfg.Recognizer.ModelPath != "/models/ggml-base.bin" {
		t.Errorf("Recognizer = %+v, want whisper engine", cfg.Recognizer)
	}
	if !cfg.TTS.Enabled {
		t.Error("TTS should be enabled")
	}
}

func TestLoad_EmptyOptionsKeepEnvironment(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("STREAM_URL", "https://env.example.com/live")
	t.Setenv("LOQA_PORT", "8100")

	cfg, err := Load(WithStreamURL(""), WithPort(0), WithTarget(""), WithWhisperModel(""), WithTTS(false))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Stream.URL != "https://env.example.com/live" || cfg.Server.Port != 8100 {
		t.Errorf("zero-valued options must not override env: %+v %+v", cfg.Stream, cfg.Server)
	}
	if cfg.Recognizer.Engine != "http" {
		t.Errorf("Recognizer.Engine = %q, want http", cfg.Recognizer.Engine)
	}
}

func TestLoad_MissingStreamURL(t *testing.T) {
	clearEnvVars(t)

	_, err := Load()
	if !errors.Is(err, ErrMissingStreamURL) {
		t.Fatalf("Load() error = %v, want ErrMissingStreamURL", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		errText string
	}{
		{name: "Port out of range", envVars: map[string]string{"LOQA_PORT": "70000"}, errText: "invalid server port"},
		{name: "Unknown subtitle format", envVars: map[string]string{"SUBTITLE_FORMAT": "xml"}, errText: "unsupported subtitle format"},
		{name: "Odd chunk size", envVars: map[string]string{"AUDIO_CHUNK_BYTES": "4001"}, errText: "even number of bytes"},
		{name: "Whisper without model", envVars: map[string]string{"STT_ENGINE": "whisper"}, errText: "whisper model path"},
		{name: "Unknown engine", envVars: map[string]string{"STT_ENGINE": "vosk"}, errText: "unsupported recognizer engine"},
		{name: "Max below min", envVars: map[string]string{"SEGMENT_MIN_WORDS": "10", "SEGMENT_MAX_WORDS": "5"}, errText: "must not be below min words"},
		{name: "Zero min words", envVars: map[string]string{"SEGMENT_MIN_WORDS": "0"}, errText: "at least 1"},
		{name: "Similarity above one", envVars: map[string]string{"SEGMENT_REPEAT_SIMILARITY": "1.5"}, errText: "repeat similarity"},
		{name: "Bad target language", envVars: map[string]string{"TRANSLATE_TARGET": "??"}, errText: "invalid target language"},
		{name: "Unknown provider", envVars: map[string]string{"TRANSLATE_PROVIDERS": "babelfish"}, errText: "unknown translation provider"},
		{name: "OpenAI without key", envVars: map[string]string{"TRANSLATE_PROVIDERS": "openai"}, errText: "OPENAI_API_KEY"},
		{name: "Context window too large", envVars: map[string]string{"TRANSLATE_CONTEXT_SIZE": "9"}, errText: "between 2 and 5"},
		{name: "Unsafe stream id", envVars: map[string]string{"STREAM_ID": "a.b"}, errText: "stream id"},
		{name: "TTS without player", envVars: map[string]string{"TTS_ENABLED": "true", "TTS_PLAYER": "  "}, errText: "player command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			t.Setenv("STREAM_URL", "https://radio.example.com/live")
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() expected error containing %q", tt.errText)
			}
			if !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("Load() error = %q, want it to contain %q", err.Error(), tt.errText)
			}
			if !strings.HasPrefix(err.Error(), "invalid configuration") {
				t.Errorf("Load() error = %q, want invalid configuration prefix", err.Error())
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnvVars(t)

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("STREAM_URL=https://dotenv.example.com/live\nSEGMENT_MAX_WORDS=20\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	// godotenv does not override variables that are already set, so clear ours first
	_ = os.Unsetenv("STREAM_URL")
	_ = os.Unsetenv("SEGMENT_MAX_WORDS")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Stream.URL != "https://dotenv.example.com/live" {
		t.Errorf("Stream.URL = %q, want value from env file", cfg.Stream.URL)
	}
	if cfg.Segment.MaxWords != 20 {
		t.Errorf("Segment.MaxWords = %d, want 20", cfg.Segment.MaxWords)
	}
}

func TestLoadEnvFile_Missing(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("LoadEnvFile() on missing file error = %v, want nil", err)
	}
	if err := LoadEnvFile(""); err != nil {
		t.Errorf("LoadEnvFile(\"\") error = %v, want nil", err)
	}
}
