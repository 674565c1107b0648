package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestGetEnvFallbacks(t *testing.T) {
	t.Setenv("AUCTION_TEST_STR", "value")
	t.Setenv("AUCTION_TEST_INT", "42")
	t.Setenv("AUCTION_TEST_BAD_INT", "forty-two")
	t.Setenv("AUCTION_TEST_BOOL", "true")
	t.Setenv("AUCTION_TEST_DURATION", "250ms")
	t.Setenv("AUCTION_TEST_BLANK", "  ")

	check.Equal(t, "value", GetEnv("AUCTION_TEST_STR", "fallback"))
	check.Equal(t, "fallback", GetEnv("AUCTION_TEST_MISSING", "fallback"))
	check.Equal(t, "fallback", GetEnv("AUCTION_TEST_BLANK", "fallback"))
	check.Equal(t, 42, GetEnvInt("AUCTION_TEST_INT", 1))
	check.Equal(t, 1, GetEnvInt("AUCTION_TEST_BAD_INT", 1))
	check.Equal(t, true, GetEnvBool("AUCTION_TEST_BOOL", false))
	check.Equal(t, 250*time.Millisecond, GetEnvDuration("AUCTION_TEST_DURATION", time.Second))
	check.Equal(t, time.Second, GetEnvDuration("AUCTION_TEST_MISSING", time.Second))
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	assert.NoError(t, os.WriteFile(path, []byte("AUCTION_TEST_FROM_FILE=file\nAUCTION_TEST_PRESET=file\n"), 0o600))

	t.Setenv("AUCTION_TEST_PRESET", "env")
	t.Cleanup(func() { os.Unsetenv("AUCTION_TEST_FROM_FILE") })

	Load(path, filepath.Join(dir, "missing.env"))

	check.Equal(t, "file", GetEnv("AUCTION_TEST_FROM_FILE", ""))
	check.Equal(t, "env", GetEnv("AUCTION_TEST_PRESET", ""))
}
