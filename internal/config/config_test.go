package config

import (
	"os"
	"testing"
)

func setupTestEnv(t *testing.T) func() {
	keys := []string{
		"JWT_SECRET", "DATABASE_URL", "SERVICE_NAME", "SERVER_HOST", "SERVER_PORT",
		"LOG_LEVEL", "REDIS_URL", "KAFKA_BROKERS", "AUTH_API_KEYS", "ALLOWED_ORIGINS", "GO_ENV",
	}
	orig := make(map[string]string, len(keys))
	for _, k := range keys {
		orig[k] = os.Getenv(k)
		os.Unsetenv(k)
	}
	return func() {
		for k, v := range orig {
			if v != "" {
				os.Setenv(k, v)
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

func TestValidateEnv_ValidConfiguration(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("JWT_SECRET", "this-is-a-very-long-secret-key-for-testing-purposes")
	os.Setenv("DATABASE_URL", "postgres://localhost:5432/chat")

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("expected default SERVER_PORT 8080, got %q", cfg.ServerPort)
	}
	if cfg.ServiceName != "service" {
		t.Errorf("expected default SERVICE_NAME, got %q", cfg.ServiceName)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "localhost:9092" {
		t.Errorf("expected default kafka brokers, got %v", cfg.KafkaBrokers)
	}
}

func TestValidateEnv_MissingJWTSecret(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("DATABASE_URL", "postgres://localhost:5432/chat")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error for missing JWT_SECRET")
	}
}

func TestValidateEnv_ShortJWTSecret(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("JWT_SECRET", "too-short")
	os.Setenv("DATABASE_URL", "postgres://localhost:5432/chat")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error for short JWT_SECRET")
	}
}

func TestValidateEnv_MissingDatabaseURL(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("JWT_SECRET", "this-is-a-very-long-secret-key-for-testing-purposes")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error for missing DATABASE_URL")
	}
}

func TestValidateEnv_InvalidPort(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	os.Setenv("JWT_SECRET", "this-is-a-very-long-secret-key-for-testing-purposes")
	os.Setenv("DATABASE_URL", "postgres://localhost:5432/chat")
	os.Setenv("SERVER_PORT", "not-a-port")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error for invalid SERVER_PORT")
	}
}

func TestSplitCSV(t *testing.T) {
	if got := splitCSV(""); got != nil {
		t.Errorf("expected nil for empty string, got %v", got)
	}
	got := splitCSV("a, b ,c")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v want %v", got, want)
		}
	}
}
