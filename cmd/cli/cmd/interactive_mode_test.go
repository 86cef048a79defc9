package cmd

import (
	"os"
	"testing"

	"github.com/mattn/go-isatty"

	"email-automation/internal/cli"
)

func TestShouldUseInteractiveMode(t *testing.T) {
	// The CI variable forces non-interactive mode, so clear it for the
	// duration of the table and set it only in the case that wants it.
	oldCI, hadCI := os.LookupEnv("CI")
	os.Unsetenv("CI")
	defer func() {
		if hadCI {
			os.Setenv("CI", oldCI)
		}
	}()

	tests := []struct {
		name     string
		config   *cli.Config
		explicit bool
		isTTY    bool
		ciEnv    bool
		expected bool
	}{
		{
			name:     "explicit interactive mode requested",
			config:   &cli.Config{Format: "table", Quiet: false},
			explicit: true,
			isTTY:    true,
			expected: true,
		},
		{
			name:     "explicit interactive mode requested even with json format",
			config:   &cli.Config{Format: "json", Quiet: false},
			explicit: true,
			isTTY:    true,
			expected: true,
		},
		{
			name:     "explicit interactive mode requested even without TTY",
			config:   &cli.Config{Format: "table", Quiet: false},
			explicit: true,
			isTTY:    false,
			expected: true,
		},
		{
			name:     "auto-detect: table format, not quiet, TTY",
			config:   &cli.Config{Format: "table", Quiet: false},
			explicit: false,
			isTTY:    true,
			expected: true,
		},
		{
			name:     "auto-detect: json format should disable interactive",
			config:   &cli.Config{Format: "json", Quiet: false},
			explicit: false,
			isTTY:    true,
			expected: false,
		},
		{
			name:     "auto-detect: quiet mode should disable interactive",
			config:   &cli.Config{Format: "table", Quiet: true},
			explicit: false,
			isTTY:    true,
			expected: false,
		},
		{
			name:     "auto-detect: not a TTY should disable interactive",
			config:   &cli.Config{Format: "table", Quiet: false},
			explicit: false,
			isTTY:    false,
			expected: false,
		},
		{
			name:     "auto-detect: CI environment should disable interactive",
			config:   &cli.Config{Format: "table", Quiet: false},
			explicit: false,
			isTTY:    true,
			ciEnv:    true,
			expected: false,
		},
		{
			name:     "auto-detect: multiple disqualifying factors",
			config:   &cli.Config{Format: "json", Quiet: true},
			explicit: false,
			isTTY:    false,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origIsTerminal := isTerminalFunc
			isTerminalFunc = func() bool { return tt.isTTY }
			defer func() { isTerminalFunc = origIsTerminal }()

			if tt.ciEnv {
				os.Setenv("CI", "true")
				defer os.Unsetenv("CI")
			}

			result := shouldUseInteractiveMode(tt.config, tt.explicit)
			if result != tt.expected {
				t.Errorf("shouldUseInteractiveMode(%+v, %t) = %t, expected %t",
					tt.config, tt.explicit, result, tt.expected)
			}
		})
	}
}

func TestIsTerminalDetection(t *testing.T) {
	// This test verifies that isatty detection works as expected
	// In test environment, we expect this to return false
	isTTY := isatty.IsTerminal(os.Stdout.Fd())

	// In most testing environments, this should be false
	// But we'll just verify the function works without error
	if isTTY {
		t.Logf("Running in a terminal environment: %t", isTTY)
	} else {
		t.Logf("Running in a non-terminal environment: %t", isTTY)
	}
}
