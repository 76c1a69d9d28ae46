package bootstrap

import (
	"testing"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

func validAppConfig() AppConfig {
	return AppConfig{
		MongoURI:      "mongodb://localhost:27017",
		MongoDatabase: "guildhall",
		SessionKey:    "a-perfectly-reasonable-testing-key-123456",
		SessionName:   "guildhall-session",
	}
}

func TestValidateConfig_Accepts(t *testing.T) {
	core := &config.CoreConfig{Env: "dev"}
	if err := ValidateConfig(core, validAppConfig(), zap.NewNop()); err != nil {
		t.Fatalf("ValidateConfig: %v", err)
	}
}

func TestValidateConfig_RejectsBadMongoURI(t *testing.T) {
	core := &config.CoreConfig{Env: "dev"}
	cfg := validAppConfig()
	cfg.MongoURI = "not a uri"
	if err := ValidateConfig(core, cfg, zap.NewNop()); err == nil {
		t.Fatal("expected an error for a malformed Mongo URI")
	}
}

func TestValidateConfig_RejectsDevKeyInProd(t *testing.T) {
	core := &config.CoreConfig{Env: "prod"}
	cfg := validAppConfig()
	cfg.SessionKey = "dev-only-change-me-please-0123456789ABCDEF"
	if err := ValidateConfig(core, cfg, zap.NewNop()); err == nil {
		t.Fatal("expected the dev session key to be rejected in prod")
	}
}

func TestValidateConfig_RejectsHalfOAuthPair(t *testing.T) {
	core := &config.CoreConfig{Env: "dev"}

	cfg := validAppConfig()
	cfg.GoogleClientID = "id-without-secret"
	if err := ValidateConfig(core, cfg, zap.NewNop()); err == nil {
		t.Error("expected google id without secret to be rejected")
	}

	cfg = validAppConfig()
	cfg.MicrosoftClientSecret = "secret-without-id"
	if err := ValidateConfig(core, cfg, zap.NewNop()); err == nil {
		t.Error("expected microsoft secret without id to be rejected")
	}
}

func TestValidateConfig_RejectsAdminWithoutPassword(t *testing.T) {
	core := &config.CoreConfig{Env: "dev"}
	cfg := validAppConfig()
	cfg.AdminEmail = "admin@example.com"
	if err := ValidateConfig(core, cfg, zap.NewNop()); err == nil {
		t.Fatal("expected admin_email without admin_password to be rejected")
	}
}
