package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	c := Config{}
	c.App.Env = "local"
	c.App.Port = 8080
	c.DB.Host = "localhost"
	c.DB.Port = 5432
	c.DB.User = "app"
	c.DB.Name = "vibemeet"
	c.Redis.Host = "localhost"
	c.Redis.Port = 6379
	c.Auth.JWTSecret = "secret"
	return c
}

func TestValidate_AppliesBillingDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Billing.TickInterval != time.Second {
		t.Fatalf("tick interval default = %v", c.Billing.TickInterval)
	}
	if c.Billing.SessionTTL != 2*time.Hour {
		t.Fatalf("session ttl default = %v", c.Billing.SessionTTL)
	}
	if c.Billing.RingingTimeout != 35*time.Second {
		t.Fatalf("ringing timeout default = %v", c.Billing.RingingTimeout)
	}
	if c.Billing.ReaperInterval != 10*time.Second {
		t.Fatalf("reaper interval default = %v", c.Billing.ReaperInterval)
	}
	if c.Billing.EarnRatePerSecond != 0.5 {
		t.Fatalf("earn rate default = %v", c.Billing.EarnRatePerSecond)
	}
	if c.Billing.MinBalanceToStart != 10 {
		t.Fatalf("min balance default = %v", c.Billing.MinBalanceToStart)
	}
}

func TestValidate_RejectsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for empty config")
	}
}

func TestValidate_RejectsNegativeMinBalance(t *testing.T) {
	c := validConfig()
	c.Billing.MinBalanceToStart = -1
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for negative min balance")
	}
}

func TestValidate_SessionTTLMustExceedRingingTimeout(t *testing.T) {
	c := validConfig()
	c.Billing.SessionTTL = 5 * time.Second
	c.Billing.RingingTimeout = 35 * time.Second
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error when session ttl <= ringing timeout")
	}
}
