package auth

import (
	"errors"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	t.Parallel()

	generated, err := GenerateKey(EnvLive)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	if !ValidKeyFormat(generated.Plaintext) {
		t.Errorf("generated key %q does not match expected format", generated.Plaintext)
	}
	if len(generated.Prefix) != KeyPrefixLen {
		t.Errorf("prefix length = %d, want %d", len(generated.Prefix), KeyPrefixLen)
	}

	ok, err := VerifyKey(generated.Plaintext, generated.Hash)
	if err != nil {
		t.Fatalf("VerifyKey() error = %v", err)
	}
	if !ok {
		t.Error("generated key does not verify against its own hash")
	}
}

func TestGenerateKey_UnknownEnvDefaultsToLive(t *testing.T) {
	t.Parallel()

	generated, err := GenerateKey("staging")
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	parsed, err := ParseKey(generated.Plaintext)
	if err != nil {
		t.Fatalf("ParseKey() error = %v", err)
	}
	if parsed.Env != EnvLive {
		t.Errorf("env = %q, want %q", parsed.Env, EnvLive)
	}
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	generated, err := GenerateKey(EnvTest)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	parsed, err := ParseKey(generated.Plaintext)
	if err != nil {
		t.Fatalf("ParseKey() error = %v", err)
	}
	if parsed.Env != EnvTest {
		t.Errorf("env = %q, want test", parsed.Env)
	}
	if parsed.Prefix != generated.Prefix {
		t.Errorf("prefix = %q, want %q", parsed.Prefix, generated.Prefix)
	}
	if len(parsed.Secret) != KeySecretLen {
		t.Errorf("secret length = %d, want %d", len(parsed.Secret), KeySecretLen)
	}
}

func TestParseKey_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"wrong scheme", "pk_live_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b"},
		{"unknown env", "rk_prod_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b"},
		{"short prefix", "rk_live_ab_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b"},
		{"short secret", "rk_live_abc123_deadbeef"},
		{"uppercase hex", "rk_live_ABC123_4F8D2E1B9C7A5F3D2E1B9C7A5F3D2E1B"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseKey(tt.key); !errors.Is(err, ErrInvalidKeyFormat) {
				t.Errorf("ParseKey(%q) error = %v, want ErrInvalidKeyFormat", tt.key, err)
			}
		})
	}
}
