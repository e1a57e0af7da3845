package bot

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"gazette_bot/internal/model"
)

const maxTermLength = 100

// ParseTerm normalizes a keyword or search term argument.
func ParseTerm(args string) (string, error) {
	term := model.NormalizeKeyword(args)
	if term == "" {
		return "", fmt.Errorf("term is required")
	}
	if utf8.RuneCountInString(term) > maxTermLength {
		return "", fmt.Errorf("term longer than %d characters", maxTermLength)
	}
	return term, nil
}

// FormatCallback builds inline button data, e.g. "download:5470".
func FormatCallback(action string, edition int) string {
	return fmt.Sprintf("%s:%d", action, edition)
}

// ParseCallback splits inline button data into its action and edition number.
func ParseCallback(data string) (string, int, error) {
	action, arg, ok := strings.Cut(data, ":")
	if !ok || action == "" {
		return "", 0, fmt.Errorf("malformed callback %q", data)
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return "", 0, fmt.Errorf("invalid edition number %q", arg)
	}
	return action, n, nil
}
