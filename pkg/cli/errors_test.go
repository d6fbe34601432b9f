package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigError(t *testing.T) {
	tests := []struct {
		name string
		err  *ConfigError
		want string
	}{
		{"with field", NewConfigError("providers[0].type", "unknown type"), "config error in providers[0].type: unknown type"},
		{"without field", NewConfigError("", "file not found"), "config error: file not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandError(t *testing.T) {
	cause := errors.New("listen tcp: address in use")
	err := NewCommandError("run", cause)

	if got, want := err.Error(), "command run failed: listen tcp: address in use"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", NewConfigError("server", "bad"), ExitConfigError},
		{"wrapped config", fmt.Errorf("load: %w", NewConfigError("", "bad")), ExitConfigError},
		{"command", NewCommandError("ask", errors.New("boom")), ExitFailure},
		{"plain", errors.New("boom"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
