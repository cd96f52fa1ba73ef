package utils

import (
	"crypto/rand"
	"fmt"
	mrand "math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

func EscapeMd(s string) string {
	repl := []string{"*", "\\*", "_", "\\_", "`", "\\`", "~", "\\~"}
	r := strings.NewReplacer(repl...)
	return r.Replace(s)
}

func PrettyTime(sec int) string {
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// PrettyMillis is PrettyTime for node timestamps.
func PrettyMillis(ms int64) string {
	return PrettyTime(int(ms / 1000))
}

// Truncate cuts s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n || n < 1 {
		return s
	}
	return string(r[:n-1]) + "…"
}

var reDur = regexp.MustCompile(`(?i)^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

// ParseDurationString accepts plain seconds, 1h2m3s style or 1:02:03 style.
func ParseDurationString(s string) int {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if strings.Contains(s, ":") {
		total := 0
		for _, part := range strings.Split(s, ":") {
			total = total*60 + Atoi(part)
		}
		return total
	}
	m := reDur.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	h := Atoi(m[1])
	min := Atoi(m[2])
	sec := Atoi(m[3])
	return h*3600 + min*60 + sec
}

func Atoi(s string) int {
	if s == "" {
		return 0
	}
	v, _ := strconv.Atoi(s)
	return v
}

func ShuffleSlice[T any](a []T) {
	newRand().Shuffle(len(a), func(i, j int) { a[i], a[j] = a[j], a[i] })
}

// RandIndex returns a uniform index in [0, n).
func RandIndex(n int) int {
	if n <= 1 {
		return 0
	}
	return newRand().Intn(n)
}

func newRand() *mrand.Rand {
	var seed int64
	_ = binaryReadRand(&seed) // falls back to time-based if needed
	return mrand.New(mrand.NewSource(seed))
}

// binaryReadRand reads 8 random bytes into an int64 seed.
func binaryReadRand(dst *int64) error {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		*dst = time.Now().UnixNano()
		return err
	}
	*dst = int64(uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7]))
	return nil
}
