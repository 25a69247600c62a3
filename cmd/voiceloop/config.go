package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type config struct {
	ReplyEndpoint string `env:"VOICELOOP_REPLY_ENDPOINT" envDefault:"http://localhost:3000"`
	ReplyAPIKey   string `env:"VOICELOOP_REPLY_API_KEY"`

	TTSEndpoint  string `env:"VOICELOOP_TTS_ENDPOINT"`
	TTSAPIKey    string `env:"VOICELOOP_TTS_API_KEY"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	Voice        string `env:"VOICELOOP_VOICE" envDefault:"alloy"`

	UserID     string `env:"VOICELOOP_USER_ID" envDefault:"local"`
	UserName   string `env:"VOICELOOP_USER_NAME"`
	Mode       string `env:"VOICELOOP_MODE" envDefault:"dialogue"`
	MemoryMode string `env:"VOICELOOP_MEMORY_MODE" envDefault:"session"`

	StreamReplies bool `env:"VOICELOOP_STREAM_REPLIES" envDefault:"true"`
	TextOnly      bool `env:"VOICELOOP_TEXT_ONLY"`
}

func loadConfig() (config, error) {
	cfg := config{}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}
