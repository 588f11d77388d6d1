package config

import "fmt"

type Config struct {
	Env                   string
	HTTPListenAddr        string
	DatabaseURL           string
	LiveKitURL            string
	LiveKitAPIKey         string
	LiveKitAPISecret      string
	TokenIssuerURL        string
	IdentityJWTSecret     string
	DefaultTargetLanguage string
	DefaultNativeLanguage string
	DefaultLevel          string
	MaxSessionDurationMin int
	AudioCaptureCommand   string
	AudioPlaybackCommand  string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.TokenIssuerURL == "" && (c.LiveKitAPIKey == "" || c.LiveKitAPISecret == "") {
		return fmt.Errorf("either TOKEN_ISSUER_URL or both LIVEKIT_API_KEY and LIVEKIT_API_SECRET must be set")
	}
	if c.MaxSessionDurationMin <= 0 {
		return fmt.Errorf("MAX_SESSION_DURATION_MIN must be positive, got %d", c.MaxSessionDurationMin)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "LIVEKIT_URL", value: c.LiveKitURL},
		{name: "IDENTITY_JWT_SECRET", value: c.IdentityJWTSecret},
		{name: "DEFAULT_TARGET_LANGUAGE", value: c.DefaultTargetLanguage},
		{name: "DEFAULT_NATIVE_LANGUAGE", value: c.DefaultNativeLanguage},
		{name: "DEFAULT_LEVEL", value: c.DefaultLevel},
	}
}

// SelfIssueTokens reports whether session credentials are minted locally
// instead of being requested from a remote issuer.
func (c *Config) SelfIssueTokens() bool {
	return c.TokenIssuerURL == ""
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
