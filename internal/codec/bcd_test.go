package codec

import (
	"errors"
	"testing"
)

func TestDecodeBCD(t *testing.T) {
	data := []byte{0x00, 0x00, 0x12, 0x34, 0x50}

	cases := []struct {
		digits int
		want   string
	}{
		{10, "0000123450"},
		{5, "23450"},
		{0, "0000123450"},
		{12, "000000123450"},
	}
	for _, c := range cases {
		got, err := DecodeBCD(data, c.digits)
		if err != nil {
			t.Fatalf("DecodeBCD(%d): %v", c.digits, err)
		}
		if got != c.want {
			t.Fatalf("DecodeBCD(%d) = %q, want %q", c.digits, got, c.want)
		}
	}
}

func TestDecodeBCDInvalidNibble(t *testing.T) {
	if _, err := DecodeBCD([]byte{0x1A}, 2); !errors.Is(err, ErrInvalidBCD) {
		t.Fatalf("low nibble 0xA: err = %v, want ErrInvalidBCD", err)
	}
	if _, err := DecodeBCD([]byte{0xB1}, 2); !errors.Is(err, ErrInvalidBCD) {
		t.Fatalf("high nibble 0xB: err = %v, want ErrInvalidBCD", err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, digits := range []string{"0", "7", "42", "007", "1234567890", "999999999"} {
		packed, err := EncodeBCD(digits)
		if err != nil {
			t.Fatalf("EncodeBCD(%q): %v", digits, err)
		}
		back, err := DecodeBCD(packed, len(digits))
		if err != nil {
			t.Fatalf("DecodeBCD after encode(%q): %v", digits, err)
		}
		if back != digits {
			t.Fatalf("round trip %q -> %q", digits, back)
		}
	}
}

func TestEncodeBCDRejectsNonDigits(t *testing.T) {
	if _, err := EncodeBCD("12a4"); !errors.Is(err, ErrInvalidBCD) {
		t.Fatalf("err = %v, want ErrInvalidBCD", err)
	}
}

func TestEncodeBCDEmpty(t *testing.T) {
	out, err := EncodeBCD("")
	if err != nil || out != nil {
		t.Fatalf("EncodeBCD(\"\") = %v, %v", out, err)
	}
}

func TestDecodeBCDUint(t *testing.T) {
	v, err := DecodeBCDUint([]byte{0x00, 0x00, 0x12, 0x34, 0x50})
	if err != nil {
		t.Fatalf("DecodeBCDUint: %v", err)
	}
	if v != 123450 {
		t.Fatalf("DecodeBCDUint = %d, want 123450", v)
	}
	if _, err := DecodeBCDUint([]byte{0xFF}); !errors.Is(err, ErrInvalidBCD) {
		t.Fatalf("err = %v, want ErrInvalidBCD", err)
	}
}
