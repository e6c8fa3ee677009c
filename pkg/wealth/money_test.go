package wealth

import (
	"errors"
	"testing"
)

func TestParseAmountExact(t *testing.T) {
	cases := []struct {
		in       string
		currency string
		minor    int64
	}{
		{"0", "WND", 0},
		{"1", "WND", 1_000_000_000_000},
		{"0.25", "WND", 250_000_000_000},
		{"0.000000000001", "WND", 1},
		{"10.50", "USDB", 10_500_000},
		{"-3.5", "USDB", -3_500_000},
	}
	for _, c := range cases {
		a, err := ParseAmount(c.in, c.currency)
		if err != nil {
			t.Fatalf("ParseAmount(%q, %s): %v", c.in, c.currency, err)
		}
		if a.MinorUnits != c.minor {
			t.Errorf("ParseAmount(%q, %s) = %d minor units, want %d", c.in, c.currency, a.MinorUnits, c.minor)
		}
	}
}

func TestParseAmountRejects(t *testing.T) {
	bad := []string{"", "1e-3", "2.5E2", "0.0000000000001", "1.2.3", "abc", "5.", "NaN", "0x10"}
	for _, in := range bad {
		if _, err := ParseAmount(in, "WND"); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ParseAmount(%q) = %v, want ErrInvalidAmount", in, err)
		}
	}
}

func TestAmountStringRoundTrip(t *testing.T) {
	for _, in := range []string{"0", "1", "0.25", "123.456", "0.000000000001", "-7.5"} {
		a := MustParse(in, "WND")
		back, err := ParseAmount(a.String(), "WND")
		if err != nil {
			t.Fatalf("reparse of %q: %v", a.String(), err)
		}
		if back != a {
			t.Errorf("round trip of %q: got %+v, want %+v", in, back, a)
		}
	}
}

func TestAmountStringFixedNotation(t *testing.T) {
	a := MustParse("0.000000000001", "WND")
	if a.String() != "0.000000000001" {
		t.Errorf("String() = %q, want fixed notation", a.String())
	}
}

func TestAmountCurrencyMismatch(t *testing.T) {
	wnd := MustParse("1", "WND")
	usdb := MustParse("1", "USDB")
	if _, err := wnd.Add(usdb); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("Add across currencies = %v, want ErrCurrencyMismatch", err)
	}
	if _, err := wnd.Cmp(usdb); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("Cmp across currencies = %v, want ErrCurrencyMismatch", err)
	}
}

func TestAmountMin(t *testing.T) {
	a := MustParse("0.30", "WND")
	b := MustParse("0.25", "WND")
	m, err := a.Min(b)
	if err != nil {
		t.Fatal(err)
	}
	if m != b {
		t.Errorf("Min = %s, want %s", m.String(), b.String())
	}
}

func TestAmountArithmeticOverflow(t *testing.T) {
	// 5,000,000 WND is 5e18 planck; two of them exceed int64.
	big := MustParse("5000000", "WND")
	if _, err := big.Add(big); !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("Add = %v, want ErrAmountOverflow", err)
	}

	negBig := FromMinorUnits(-5_000_000_000_000_000_000, "WND")
	if _, err := negBig.Add(negBig); !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("Add negative = %v, want ErrAmountOverflow", err)
	}
	if _, err := negBig.Sub(big); !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("Sub = %v, want ErrAmountOverflow", err)
	}

	// Within range still sums exactly.
	sum, err := big.Add(MustParse("1", "WND"))
	if err != nil {
		t.Fatal(err)
	}
	if sum.String() != "5000001" {
		t.Errorf("sum = %s", sum)
	}
}
