package github

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PaulSonOfLars/gotgbot/v2"
)

const maxBodyRunes = 500

var markdownV2Escaper = strings.NewReplacer(
	"\\", "\\\\",
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"]", "\\]",
	"(", "\\(",
	")", "\\)",
	"~", "\\~",
	"`", "\\`",
	">", "\\>",
	"#", "\\#",
	"+", "\\+",
	"-", "\\-",
	"=", "\\=",
	"|", "\\|",
	"{", "\\{",
	"}", "\\}",
	".", "\\.",
	"!", "\\!",
)

// EscapeMarkdownV2 escapes everything Telegram's MarkdownV2 parser treats as
// markup.
func EscapeMarkdownV2(s string) string {
	return markdownV2Escaper.Replace(s)
}

var markdownV2URLEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"(", "\\(",
	")", "\\)",
)

// EscapeMarkdownV2URL escapes a URL for use inside a MarkdownV2 link target,
// where only parentheses and backslashes are special.
func EscapeMarkdownV2URL(s string) string {
	return markdownV2URLEscaper.Replace(s)
}

// FormatRepo renders owner/name as a MarkdownV2 link to the repository.
func FormatRepo(fullName string) string {
	return fmt.Sprintf("[%s](https://github.com/%s)", EscapeMarkdownV2(fullName), EscapeMarkdownV2URL(fullName))
}

// FormatUser renders a login as a MarkdownV2 link to the profile.
func FormatUser(login string) string {
	return fmt.Sprintf("[%s](https://github.com/%s)", EscapeMarkdownV2(login), EscapeMarkdownV2URL(login))
}

// FormatMessageWithButton pairs a message with a single inline URL button.
func FormatMessageWithButton(msg, label, url string) (string, *gotgbot.InlineKeyboardMarkup) {
	return msg, &gotgbot.InlineKeyboardMarkup{
		InlineKeyboard: [][]gotgbot.InlineKeyboardButton{
			{{Text: label, Url: url}},
		},
	}
}

// FormatTextWithMarkdown prepares an event body (issue/PR description,
// commit message) for MarkdownV2 output: HTML fragments are converted to
// markdown first, then the text is truncated and escaped.
func FormatTextWithMarkdown(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	if strings.Contains(text, "<") && strings.Contains(text, ">") {
		if converted, err := htmltomarkdown.ConvertString(text); err == nil {
			text = strings.TrimSpace(converted)
		}
	}

	runes := []rune(text)
	if len(runes) > maxBodyRunes {
		text = string(runes[:maxBodyRunes]) + "…"
	}

	return EscapeMarkdownV2(text)
}
