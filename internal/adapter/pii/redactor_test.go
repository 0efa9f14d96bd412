package pii

import (
	"io"
	"log/slog"
	"reflect"
	"testing"
)

func TestRedactor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	redactor := NewRedactor([]string{"apiKey", " password "}, logger)

	tests := []struct {
		name           string
		input          map[string]any
		expected       map[string]any
		expectRedacted bool
	}{
		{
			name:           "Redact top-level field",
			input:          map[string]any{"apiKey": "sk-123", "model": "gpt-4"},
			expected:       map[string]any{"apiKey": RedactedPlaceholder, "model": "gpt-4"},
			expectRedacted: true,
		},
		{
			name:           "Case-insensitive match",
			input:          map[string]any{"APIKEY": "sk-123", "Password": "hunter2"},
			expected:       map[string]any{"APIKEY": RedactedPlaceholder, "Password": RedactedPlaceholder},
			expectRedacted: true,
		},
		{
			name: "Nested maps and lists",
			input: map[string]any{
				"apiConfig": map[string]any{"apiKey": "sk-1", "baseUrl": "https://example.test"},
				"accounts":  []any{map[string]any{"password": "x"}, "plain"},
			},
			expected: map[string]any{
				"apiConfig": map[string]any{"apiKey": RedactedPlaceholder, "baseUrl": "https://example.test"},
				"accounts":  []any{map[string]any{"password": RedactedPlaceholder}, "plain"},
			},
			expectRedacted: true,
		},
		{
			name:           "No fields to redact",
			input:          map[string]any{"cycle": 1, "question": "how?"},
			expected:       map[string]any{"cycle": 1, "question": "how?"},
			expectRedacted: false,
		},
		{
			name:           "Empty data",
			input:          map[string]any{},
			expected:       map[string]any{},
			expectRedacted: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, redacted := redactor.Redact(tt.input)
			if redacted != tt.expectRedacted {
				t.Errorf("redacted = %v, want %v", redacted, tt.expectRedacted)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Redact() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRedactor_DoesNotModifyInput(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	redactor := NewRedactor([]string{"token"}, logger)

	input := map[string]any{"token": "secret"}
	redactor.Redact(input)
	if input["token"] != "secret" {
		t.Error("input map was modified")
	}
}

func TestRedactor_NilAndEmptyConfig(t *testing.T) {
	var nilRedactor *Redactor
	data := map[string]any{"password": "x"}
	if got, redacted := nilRedactor.Redact(data); redacted || got["password"] != "x" {
		t.Error("nil redactor must pass data through")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, redacted := NewRedactor(nil, logger).Redact(data); redacted {
		t.Error("redactor without fields must not redact")
	}
}
