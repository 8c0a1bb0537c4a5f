package utils

import "testing"

func TestNormalizeRegistration(t *testing.T) {
	cases := map[string]string{
		"ab12 cde":     "AB12CDE",
		" AB12CDE ":    "AB12CDE",
		"ab12\tcde":    "AB12CDE",
		"AB12CDE":      "AB12CDE",
		"":             "",
		"ab 12 c d e ": "AB12CDE",
	}
	for in, want := range cases {
		if got := NormalizeRegistration(in); got != want {
			t.Errorf("NormalizeRegistration(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeVin(t *testing.T) {
	if got := NormalizeVin(" wvwzzz1jz3w386752 "); got != "WVWZZZ1JZ3W386752" {
		t.Errorf("NormalizeVin = %q", got)
	}
}

func TestNormalizeMobileStripsWhitespaceOnly(t *testing.T) {
	cases := map[string]string{
		"07700 900123":  "07700900123",
		"+44 7700 900":  "+447700900",
		"07700900123":   "07700900123",
		" 07700900123 ": "07700900123",
	}
	for in, want := range cases {
		if got := NormalizeMobile(in); got != want {
			t.Errorf("NormalizeMobile(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsValidEmail(t *testing.T) {
	valid := []string{"jo@example.com", "jo.driver+tag@sub.example.co.uk"}
	invalid := []string{"", "not-an-email", "jo@", "@example.com"}
	for _, e := range valid {
		if !IsValidEmail(e) {
			t.Errorf("IsValidEmail(%q) = false, want true", e)
		}
	}
	for _, e := range invalid {
		if IsValidEmail(e) {
			t.Errorf("IsValidEmail(%q) = true, want false", e)
		}
	}
}
