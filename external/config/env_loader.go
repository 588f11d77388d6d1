package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/lingora-app/lingora/internal/config"
)

type envConfig struct {
	Env                   string `env:"ENV" envDefault:"production"`
	HTTPListenAddr        string `env:"HTTP_LISTEN_ADDR" envDefault:":8080"`
	DatabaseURL           string `env:"DATABASE_URL,required"`
	LiveKitURL            string `env:"LIVEKIT_URL,required"`
	LiveKitAPIKey         string `env:"LIVEKIT_API_KEY"`
	LiveKitAPISecret      string `env:"LIVEKIT_API_SECRET"`
	TokenIssuerURL        string `env:"TOKEN_ISSUER_URL"`
	IdentityJWTSecret     string `env:"IDENTITY_JWT_SECRET,required"`
	DefaultTargetLanguage string `env:"DEFAULT_TARGET_LANGUAGE" envDefault:"en"`
	DefaultNativeLanguage string `env:"DEFAULT_NATIVE_LANGUAGE" envDefault:"es"`
	DefaultLevel          string `env:"DEFAULT_LEVEL" envDefault:"beginner"`
	MaxSessionDurationMin int    `env:"MAX_SESSION_DURATION_MIN" envDefault:"120"`
	AudioCaptureCommand   string `env:"AUDIO_CAPTURE_COMMAND"`
	AudioPlaybackCommand  string `env:"AUDIO_PLAYBACK_COMMAND"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                   raw.Env,
		HTTPListenAddr:        raw.HTTPListenAddr,
		DatabaseURL:           raw.DatabaseURL,
		LiveKitURL:            raw.LiveKitURL,
		LiveKitAPIKey:         raw.LiveKitAPIKey,
		LiveKitAPISecret:      raw.LiveKitAPISecret,
		TokenIssuerURL:        raw.TokenIssuerURL,
		IdentityJWTSecret:     raw.IdentityJWTSecret,
		DefaultTargetLanguage: raw.DefaultTargetLanguage,
		DefaultNativeLanguage: raw.DefaultNativeLanguage,
		DefaultLevel:          raw.DefaultLevel,
		MaxSessionDurationMin: raw.MaxSessionDurationMin,
		AudioCaptureCommand:   raw.AudioCaptureCommand,
		AudioPlaybackCommand:  raw.AudioPlaybackCommand,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
