package dispatch

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CommandPrefix starts every command.
const CommandPrefix = "/"

// IsCommand reports whether text is routed through the command pipeline.
func IsCommand(text string) bool {
	return strings.HasPrefix(text, CommandPrefix)
}

// CommandArgs matches name against the start of text. The match must end at
// whitespace or at the end of text, so "/a" does not match "/ab x". The
// returned args are the rest of text without surrounding whitespace.
func CommandArgs(name, text string) (string, bool) {
	if name == "" {
		return "", false
	}

	rest, ok := strings.CutPrefix(text, name)
	if !ok {
		return "", false
	}
	if rest == "" {
		return "", true
	}

	next, _ := utf8.DecodeRuneInString(rest)
	if !unicode.IsSpace(next) {
		return "", false
	}
	return strings.TrimSpace(rest), true
}
