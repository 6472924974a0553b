package model

import (
	"strings"
	"time"
	"unicode"
)

// DisplayTime renders the HH:MM label shown next to messages and chats.
// It is presentation only and must never be used for ordering.
func DisplayTime(t time.Time) string {
	return t.Local().Format("15:04")
}

// NormalizePhone strips everything but digits and a leading '+', adding
// the '+' when missing.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "+" + b.String()
}
