package utils

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		input    string
		length   int
		expected string
	}{
		{"hello world", 5, "he..."},
		{"short", 10, "short"},
		{"exact", 5, "exact"},
		{"", 5, ""},
		{"abc", 2, "ab"},
		{"abc", 3, "abc"},
	}

	for _, tt := range tests {
		result := TruncateString(tt.input, tt.length)
		if result != tt.expected {
			t.Errorf("TruncateString(%q, %d) = %q; want %q", tt.input, tt.length, result, tt.expected)
		}
	}
}

func TestShortAddress(t *testing.T) {
	if got := ShortAddress("0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"); got != "0xAb58…eC9B" {
		t.Errorf("ShortAddress() = %q", got)
	}
	if got := ShortAddress(""); got != "-" {
		t.Errorf("ShortAddress(\"\") = %q; want -", got)
	}
	if got := ShortAddress("0x1234"); got != "0x1234" {
		t.Errorf("ShortAddress(short) = %q", got)
	}
}

func TestAddCommas(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"123", "123"},
		{"1234", "1,234"},
		{"123456", "123,456"},
		{"1234567", "1,234,567"},
		{"1234.56", "1,234.56"},
		{"-1234", "-1,234"},
		{"", ""},
	}

	for _, tt := range tests {
		result := AddCommas(tt.input)
		if result != tt.expected {
			t.Errorf("AddCommas(%q) = %q; want %q", tt.input, result, tt.expected)
		}
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		input    float64
		decimals int
		expected string
	}{
		{1234.5678, 2, "1,234.57"},
		{1234.5, 2, "1,234.50"},
		{0, 2, "0.00"},
	}

	for _, tt := range tests {
		result := FormatFloat(tt.input, tt.decimals)
		if result != tt.expected {
			t.Errorf("FormatFloat(%f, %d) = %q; want %q", tt.input, tt.decimals, result, tt.expected)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{20010, "20,010"},
		{157.5, "157.5"},
		{0.125, "0.125"},
		{1234.56789, "1,234.568"},
		{0, "0"},
	}

	for _, tt := range tests {
		if got := FormatNumber(tt.input, 3); got != tt.expected {
			t.Errorf("FormatNumber(%v) = %q; want %q", tt.input, got, tt.expected)
		}
	}
}

func TestFormatDecimal(t *testing.T) {
	d := decimal.RequireFromString("1234567.891")
	if got := FormatDecimal(d, 2); got != "1,234,567.89" {
		t.Errorf("FormatDecimal() = %q", got)
	}
}

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "00:00:00:00"},
		{10, "00:00:00:10"},
		{3661, "00:01:01:01"},
		{86400 + 3600 + 60 + 1, "01:01:01:01"},
		{-5, "00:00:00:00"},
		{100 * 86400, "100:00:00:00"},
	}

	for _, tt := range tests {
		if got := FormatCountdown(tt.input); got != tt.expected {
			t.Errorf("FormatCountdown(%d) = %q; want %q", tt.input, got, tt.expected)
		}
	}

	if got := FormatDuration(90*time.Second + 500*time.Millisecond); got != "00:00:01:30" {
		t.Errorf("FormatDuration() = %q", got)
	}
}
