package config

import "testing"

func validConfig() Config {
	return Config{
		App:    AppConfig{Env: "local", Port: 8080},
		DB:     DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "leadmarket", SSLMode: ""},
		Redis:  RedisConfig{Host: "localhost", Port: 6379},
		Auth:   AuthConfig{JWTSecret: "secret", TokenServiceKey: "svc-key"},
		Stripe: StripeConfig{APIKey: "sk_test_123"},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	// Ensure a clean env by not setting anything and calling validation directly.
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "leadmarket"
	c.Auth.JWTAudience = "api"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_RequiresStripeKey(t *testing.T) {
	c := validConfig()
	c.Stripe.APIKey = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for missing STRIPE_API_KEY")
	}
}

func TestValidate_SMTPRequiresFrom(t *testing.T) {
	c := validConfig()
	c.SMTP = SMTPConfig{Host: "smtp.test", Port: 587}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for SMTP_HOST without SMTP_FROM")
	}
}
