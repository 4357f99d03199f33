package intent

import (
	"strings"
	"time"
)

var weekdayVocab = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"sun":       time.Sunday,
	"monday":    time.Monday,
	"mon":       time.Monday,
	"tuesday":   time.Tuesday,
	"tues":      time.Tuesday,
	"tue":       time.Tuesday,
	"wednesday": time.Wednesday,
	"wed":       time.Wednesday,
	"thursday":  time.Thursday,
	"thurs":     time.Thursday,
	"thu":       time.Thursday,
	"friday":    time.Friday,
	"fri":       time.Friday,
	"saturday":  time.Saturday,
	"sat":       time.Saturday,
}

// ParseWeekday matches an utterance against the weekday vocabulary. It scans
// word by word so "next tuesday please" still resolves.
func ParseWeekday(utterance string) (time.Weekday, bool) {
	for _, word := range strings.Fields(normalize(utterance)) {
		if d, ok := weekdayVocab[word]; ok {
			return d, true
		}
	}
	return time.Sunday, false
}

// ParseClock extracts a time of day as minutes after midnight. It accepts
// 24-hour "15:04", 12-hour forms like "3 pm" and "3:30 p.m.", and the words
// noon and midnight.
func ParseClock(utterance string) (int, bool) {
	text := normalize(utterance)
	if strings.Contains(text, "noon") || strings.Contains(text, "midday") {
		return 12 * 60, true
	}
	if strings.Contains(text, "midnight") {
		return 0, true
	}

	words := strings.Fields(text)
	for i, word := range words {
		h, m, ok := splitClockDigits(word)
		if !ok {
			continue
		}
		meridiem := ""
		if strings.HasSuffix(word, "am") || strings.HasSuffix(word, "pm") {
			meridiem = word[len(word)-2:]
		} else if i+1 < len(words) && (words[i+1] == "am" || words[i+1] == "pm") {
			meridiem = words[i+1]
		}
		switch meridiem {
		case "am":
			if h == 12 {
				h = 0
			}
		case "pm":
			if h < 12 {
				h += 12
			}
		default:
			// Bare "3 o'clock" during business hours means afternoon only when
			// the hour is ambiguous; keep the literal 24h reading otherwise.
			if h >= 1 && h <= 8 {
				h += 12
			}
		}
		if h > 23 || m > 59 {
			return 0, false
		}
		return h*60 + m, true
	}
	return 0, false
}

func splitClockDigits(word string) (hour, minute int, ok bool) {
	word = strings.TrimSuffix(strings.TrimSuffix(word, "am"), "pm")
	if word == "" {
		return 0, 0, false
	}
	parts := strings.SplitN(word, ":", 2)
	h, ok := atoiStrict(parts[0])
	if !ok {
		return 0, 0, false
	}
	m := 0
	if len(parts) == 2 {
		m, ok = atoiStrict(parts[1])
		if !ok {
			return 0, 0, false
		}
	}
	return h, m, true
}

func atoiStrict(s string) (int, bool) {
	if s == "" || len(s) > 2 {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// SplitName applies the naive whitespace split: first token is the first
// name, last token is the last name, and a single token leaves the last name
// empty. Honorifics and multi-word surnames are out of scope.
func SplitName(spoken string) (first, last string) {
	fields := strings.Fields(strings.TrimSpace(spoken))
	if len(fields) == 0 {
		return "", ""
	}
	if len(fields) == 1 {
		return fields[0], ""
	}
	return fields[0], fields[len(fields)-1]
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r == ':':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ClockText renders minutes after midnight in the spoken 12-hour form used
// throughout the prompts, e.g. "2:30 PM".
func ClockText(minutes int) string {
	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute)
	return base.Format("3:04 PM")
}
