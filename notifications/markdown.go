package notifications

import "strings"

// markdownReplacer escapes the characters with meaning in the legacy Telegram
// Markdown mode.
var markdownReplacer = strings.NewReplacer(
	`_`, `\_`,
	`*`, `\*`,
	"`", "\\`",
	`[`, `\[`,
)

// EscapeMarkdown escapes a value before it is interpolated into a Markdown
// message, so user supplied names or emails cannot break the formatting.
func EscapeMarkdown(s string) string {
	return markdownReplacer.Replace(s)
}

// StripMarkdown removes the emphasis markers and escapes of a Markdown text,
// producing the plain body used by SMS sinks.
func StripMarkdown(s string) string {
	s = strings.NewReplacer(`\_`, "\x00", `\*`, "\x01", "\\`", "\x02", `\[`, "\x03").Replace(s)
	s = strings.NewReplacer("*", "", "_", "", "`", "").Replace(s)
	return strings.NewReplacer("\x00", "_", "\x01", "*", "\x02", "`", "\x03", "[").Replace(s)
}
