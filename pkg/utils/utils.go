package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CountdownPlaceholder is shown when there is no boundary to count down to.
const CountdownPlaceholder = "--:--:--:--"

func TruncateString(str string, num int) string {
	if len(str) <= num {
		return str
	}
	if num <= 3 {
		return str[:num]
	}
	return str[0:num-3] + "..."
}

// ShortAddress renders 0x1234…abcd style addresses.
func ShortAddress(addr string) string {
	if len(addr) < 10 {
		if addr == "" {
			return "-"
		}
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

func AddCommas(s string) string {
	if len(s) == 0 {
		return s
	}
	parts := strings.Split(s, ".")
	integerPart := parts[0]
	sign := ""
	if strings.HasPrefix(integerPart, "-") {
		sign = "-"
		integerPart = integerPart[1:]
	}

	n := len(integerPart)
	if n <= 3 {
		return s
	}

	var result strings.Builder
	result.WriteString(sign)
	remainder := n % 3
	if remainder > 0 {
		result.WriteString(integerPart[:remainder])
		result.WriteString(",")
	}
	for i := remainder; i < n; i += 3 {
		if i > remainder {
			result.WriteString(",")
		}
		result.WriteString(integerPart[i : i+3])
	}

	if len(parts) > 1 {
		result.WriteString(".")
		result.WriteString(parts[1])
	}
	return result.String()
}

func FormatFloat(f float64, decimals int) string {
	return AddCommas(fmt.Sprintf("%.*f", decimals, f))
}

// FormatNumber groups thousands and keeps at most maxDecimals fractional
// digits, dropping trailing zeros.
func FormatNumber(f float64, maxDecimals int) string {
	s := fmt.Sprintf("%.*f", maxDecimals, f)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		s = "0"
	}
	return AddCommas(s)
}

func FormatDecimal(d decimal.Decimal, places int32) string {
	return AddCommas(d.StringFixed(places))
}

// FormatCountdown renders a number of seconds as DD:HH:MM:SS. Negative
// input counts as zero.
func FormatCountdown(totalSeconds int64) string {
	s := totalSeconds
	if s < 0 {
		s = 0
	}
	dd := s / 86400
	hh := (s % 86400) / 3600
	mm := (s % 3600) / 60
	ss := s % 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", dd, hh, mm, ss)
}

// FormatDuration is FormatCountdown for a time.Duration, truncated to whole seconds.
func FormatDuration(d time.Duration) string {
	return FormatCountdown(int64(d / time.Second))
}
