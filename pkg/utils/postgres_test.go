package utils

import (
	"testing"
	"time"
)

func TestPostgresPoolConfig_Defaults(t *testing.T) {
	got := PostgresPoolConfig{}.withDefaults()
	if got.MaxOpenConns != 25 || got.MaxIdleConns != 25 {
		t.Fatalf("unexpected pool sizes: %+v", got)
	}
	if got.ConnMaxLifetime != 30*time.Minute || got.ConnMaxIdleTime != 5*time.Minute {
		t.Fatalf("unexpected conn lifetimes: %+v", got)
	}
	if got.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected ping timeout: %v", got.PingTimeout)
	}
}

func TestPostgresPoolConfig_ExplicitValuesKept(t *testing.T) {
	in := PostgresPoolConfig{MaxOpenConns: 5, PingTimeout: time.Second}
	got := in.withDefaults()
	if got.MaxOpenConns != 5 {
		t.Fatalf("explicit MaxOpenConns overridden: %d", got.MaxOpenConns)
	}
	if got.PingTimeout != time.Second {
		t.Fatalf("explicit PingTimeout overridden: %v", got.PingTimeout)
	}
	// Unset fields still get defaults.
	if got.MaxIdleConns != 25 {
		t.Fatalf("unexpected MaxIdleConns: %d", got.MaxIdleConns)
	}
}
