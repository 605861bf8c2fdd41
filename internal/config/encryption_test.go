// Adsync - Advertising Hierarchy Sync and Lead Resolution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adsync

package config

import (
	"errors"
	"strings"
	"testing"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewCredentialEncryptor_EmptySecret(t *testing.T) {
	t.Parallel()

	if _, err := NewCredentialEncryptor(""); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("expected ErrEmptySecret, got %v", err)
	}
}

func TestCredentialEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()

	enc, err := NewCredentialEncryptor(testSecret)
	if err != nil {
		t.Fatalf("NewCredentialEncryptor() error = %v", err)
	}

	tokens := []string{
		"EAAGm0PX4ZCpsBAKZB3ZCZAqZC",
		strings.Repeat("x", 512),
		"token with spaces and ünïcödé",
	}
	for _, tok := range tokens {
		sealed, err := enc.Encrypt(tok)
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if sealed == tok {
			t.Fatal("ciphertext must differ from plaintext")
		}
		got, err := enc.Decrypt(sealed)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if got != tok {
			t.Errorf("round trip = %q, want %q", got, tok)
		}
	}
}

func TestCredentialEncryptor_UniqueNonce(t *testing.T) {
	t.Parallel()

	enc, _ := NewCredentialEncryptor(testSecret)
	a, _ := enc.Encrypt("same-token")
	b, _ := enc.Encrypt("same-token")
	if a == b {
		t.Error("two encryptions of the same token produced identical ciphertext")
	}
}

func TestCredentialEncryptor_WrongSecret(t *testing.T) {
	t.Parallel()

	enc1, _ := NewCredentialEncryptor(testSecret)
	enc2, _ := NewCredentialEncryptor(testSecret + "-other")

	sealed, err := enc1.Encrypt("secret-token")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := enc2.Decrypt(sealed); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestCredentialEncryptor_InvalidInput(t *testing.T) {
	t.Parallel()

	enc, _ := NewCredentialEncryptor(testSecret)

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty", "", ErrEmptyCiphertext},
		{"not base64", "%%%not-base64%%%", ErrInvalidCipher},
		{"too short", "AAAA", ErrInvalidCipher},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := enc.Decrypt(tt.input); !errors.Is(err, tt.wantErr) {
				t.Errorf("Decrypt(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}

	if _, err := enc.Encrypt(""); !errors.Is(err, ErrEmptyPlaintext) {
		t.Errorf("Encrypt(\"\") error = %v, want ErrEmptyPlaintext", err)
	}
}
