package model

import "testing"

func TestParseCents(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "12.50", want: 1250},
		{in: "8.00", want: 800},
		{in: "24.49", want: 2449},
		{in: "0", want: 0},
		{in: "100", want: 10000},
		{in: "3.9", want: 390},
		{in: "24.490", want: 2449},
		{in: "7.00000", want: 700},
		{in: "3.999", wantErr: true},
		{in: "-1.00", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseCents(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseCents(%q) = %d, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCents(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCents(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormatCents(t *testing.T) {
	if got := FormatCents(2449); got != "24.49" {
		t.Fatalf("FormatCents(2449) = %q, want \"24.49\"", got)
	}
	if got := FormatCents(800); got != "8.00" {
		t.Fatalf("FormatCents(800) = %q, want \"8.00\"", got)
	}
	if got := FormatCents(0); got != "0.00" {
		t.Fatalf("FormatCents(0) = %q, want \"0.00\"", got)
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, cents := range []int64{0, 1, 99, 100, 1250, 2449, 999999} {
		got, err := ParseCents(FormatCents(cents))
		if err != nil {
			t.Fatalf("round trip %d: %v", cents, err)
		}
		if got != cents {
			t.Fatalf("round trip %d: got %d", cents, got)
		}
	}
}

func TestEnumsValid(t *testing.T) {
	if !RoleBuyer.Valid() || !RoleSeller.Valid() {
		t.Fatal("known roles must be valid")
	}
	if Role("admin").Valid() {
		t.Fatal("unknown role must be invalid")
	}

	for _, c := range []Condition{ConditionLikeNew, ConditionVeryGood, ConditionGood, ConditionAcceptable} {
		if !c.Valid() {
			t.Fatalf("condition %q must be valid", c)
		}
	}
	if Condition("mint").Valid() {
		t.Fatal("unknown condition must be invalid")
	}
}
