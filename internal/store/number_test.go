package store

import (
	"testing"

	"qline/internal/models"
)

func TestQueuePrefix(t *testing.T) {
	cases := []struct {
		name    string
		service models.Service
		want    string
	}{
		{"configured prefix", models.Service{Name: "Registration", QueuePrefix: "reg"}, "REG"},
		{"configured prefix trimmed", models.Service{Name: "Billing", QueuePrefix: "  BIL  "}, "BIL"},
		{"derived from name", models.Service{Name: "Pharmacy"}, "PHA"},
		{"derived skips non-letters", models.Service{Name: "X-Ray 2"}, "XRA"},
		{"short name", models.Service{Name: "IT"}, "IT"},
	}

	for _, tc := range cases {
		if got := QueuePrefix(tc.service); got != tc.want {
			t.Errorf("%s: QueuePrefix = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestFormatQueueNumber(t *testing.T) {
	if got := FormatQueueNumber("REG", 7); got != "REG-007" {
		t.Fatalf("got %q", got)
	}
	if got := FormatQueueNumber("REG", 999); got != "REG-999" {
		t.Fatalf("got %q", got)
	}
	if got := FormatQueueNumber("REG", 1000); got != "REG-1000" {
		t.Fatalf("got %q", got)
	}
}

func TestNumberSuffix(t *testing.T) {
	cases := []struct {
		number string
		prefix string
		want   int
		ok     bool
	}{
		{"REG-007", "REG", 7, true},
		{"REG-1000", "REG", 1000, true},
		{"BIL-007", "REG", 0, false},
		{"REG-abc", "REG", 0, false},
		{"REG007", "REG", 0, false},
		{`A\B-004`, `A\B`, 4, true},
		{"A%B-004", `A\B`, 0, false},
	}

	for _, tc := range cases {
		got, ok := NumberSuffix(tc.number, tc.prefix)
		if got != tc.want || ok != tc.ok {
			t.Errorf("NumberSuffix(%q, %q) = (%d, %v), want (%d, %v)", tc.number, tc.prefix, got, ok, tc.want, tc.ok)
		}
	}
}
