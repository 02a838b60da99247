package github

import (
	"strings"
	"testing"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{
			input:    "Hello World",
			expected: "Hello World",
		},
		{
			input:    "Hello_World",
			expected: "Hello\\_World",
		},
		{
			input:    "[]()~`>#+-=|{}.!",
			expected: "\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!",
		},
		{
			input:    "Backslash \\ test",
			expected: "Backslash \\\\ test",
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := EscapeMarkdownV2(tt.input); got != tt.expected {
				t.Errorf("EscapeMarkdownV2() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEscapeMarkdownV2URL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{
			input:    "https://example.com",
			expected: "https://example.com",
		},
		{
			input:    "https://example.com/foo(bar)",
			expected: "https://example.com/foo\\(bar\\)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := EscapeMarkdownV2URL(tt.input); got != tt.expected {
				t.Errorf("EscapeMarkdownV2URL() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestFormatRepo(t *testing.T) {
	tests := []struct {
		repo     string
		expected string
	}{
		{
			repo:     "owner/repo",
			expected: "[owner/repo](https://github.com/owner/repo)",
		},
		{
			repo:     "owner/my_repo",
			expected: "[owner/my\\_repo](https://github.com/owner/my_repo)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.repo, func(t *testing.T) {
			if got := FormatRepo(tt.repo); got != tt.expected {
				t.Errorf("FormatRepo() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestFormatUser(t *testing.T) {
	tests := []struct {
		user     string
		expected string
	}{
		{
			user:     "octocat",
			expected: "[octocat](https://github.com/octocat)",
		},
		{
			user:     "user_name",
			expected: "[user\\_name](https://github.com/user_name)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			if got := FormatUser(tt.user); got != tt.expected {
				t.Errorf("FormatUser() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestFormatTextWithMarkdown(t *testing.T) {
	t.Run("Plain text escaped", func(t *testing.T) {
		got := FormatTextWithMarkdown("fix bug #42")
		if !strings.Contains(got, "\\#42") {
			t.Errorf("FormatTextWithMarkdown() = %v, want # escaped", got)
		}
	})

	t.Run("Empty text", func(t *testing.T) {
		if got := FormatTextWithMarkdown("   "); got != "" {
			t.Errorf("FormatTextWithMarkdown() = %q, want empty", got)
		}
	})

	t.Run("Long text truncated", func(t *testing.T) {
		got := FormatTextWithMarkdown(strings.Repeat("a", 2000))
		if !strings.HasSuffix(got, "…") {
			t.Errorf("FormatTextWithMarkdown() expected truncation marker, got %q tail", got[len(got)-8:])
		}
	})
}
