package auth

import (
	"strings"
	"testing"
)

func TestGenerateToken_Properties(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		token, err := GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken: %v", err)
		}
		if len(token) < APIKeyLength {
			t.Errorf("token too short: %d chars", len(token))
		}
		if strings.ContainsAny(token, "+/= ") {
			t.Errorf("token is not URL-safe: %q", token)
		}
		if seen[token] {
			t.Fatal("duplicate token generated")
		}
		seen[token] = true
	}
}

func TestParseAPIKeyHeader(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantToken string
		wantOK    bool
	}{
		{"api key scheme", "ApiKey abc123", "abc123", true},
		{"trims surrounding space", "ApiKey  abc123 ", "abc123", true},
		{"bearer scheme is not an api key", "Bearer abc123", "", false},
		{"lowercase scheme rejected", "apikey abc123", "", false},
		{"empty header", "", "", false},
		{"scheme without token", "ApiKey ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, ok := ParseAPIKeyHeader(tt.header)
			if ok != tt.wantOK || token != tt.wantToken {
				t.Errorf("ParseAPIKeyHeader(%q) = (%q, %v), want (%q, %v)",
					tt.header, token, ok, tt.wantToken, tt.wantOK)
			}
		})
	}
}
