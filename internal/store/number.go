package store

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"qline/internal/models"
)

const queueNumberPad = 3

// QueuePrefix resolves the code used in a service's queue numbers:
// the configured prefix (trimmed, upper-cased) when present, otherwise
// the first three letters of the service name.
func QueuePrefix(service models.Service) string {
	prefix := strings.ToUpper(strings.TrimSpace(service.QueuePrefix))
	if prefix != "" {
		return prefix
	}
	var letters []rune
	for _, r := range service.Name {
		if unicode.IsLetter(r) {
			letters = append(letters, unicode.ToUpper(r))
			if len(letters) == 3 {
				break
			}
		}
	}
	return string(letters)
}

// FormatQueueNumber renders PREFIX-NNN, zero-padded to three digits and
// widening naturally past 999 (REG-1000).
func FormatQueueNumber(prefix string, seq int) string {
	return fmt.Sprintf("%s-%0*d", prefix, queueNumberPad, seq)
}

// NumberSuffix extracts the numeric suffix of a queue number carrying the
// given prefix. Numbers with a different prefix report false.
func NumberSuffix(number, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(number, prefix+"-")
	if !ok {
		return 0, false
	}
	value, err := strconv.Atoi(rest)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}
