// internal/regmap/regmap_test.go
package regmap

import (
	"math"
	"testing"
)

func TestResolve_KnownNames(t *testing.T) {
	cases := []struct {
		name string
		addr int
		typ  DataType
	}{
		{"AIN0", 0, Float32},
		{"ain3", 6, Float32},
		{"AIN2_RANGE", 40004, Float32},
		{"AIN5_NEGATIVE_CH", 41005, Uint16},
		{"DIO0", 2000, Uint16},
		{"FIO3", 2003, Uint16},
		{"EIO0", 2008, Uint16},
		{"CIO1", 2017, Uint16},
		{"DIO0_EF_ENABLE", 44000, Uint32},
		{"FIO1_EF_INDEX", 44102, Uint32},
		{"DIO2_EF_CONFIG_A", 44304, Uint32},
		{"STREAM_TRIGGER_INDEX", 4024, Uint32},
		{"STREAM_SCANLIST_ADDRESS3", 4106, Uint32},
		{"AIN_ALL_NEGATIVE_CH", 43902, Uint16},
		{"DEVICE_NAME_DEFAULT", 60500, String},
	}
	for _, c := range cases {
		r, err := Resolve(c.name)
		if err != nil {
			t.Fatalf("Resolve(%q) err=%v", c.name, err)
		}
		if r.Address != c.addr || r.Type != c.typ {
			t.Fatalf("Resolve(%q) = %d/%s, want %d/%s", c.name, r.Address, r.Type, c.addr, c.typ)
		}
	}
}

func TestResolve_UnknownNames(t *testing.T) {
	for _, n := range []string{"", "AIN", "AIN255", "DIO23", "FIO8", "FOO_BAR", "AINx"} {
		if _, err := Resolve(n); err == nil {
			t.Fatalf("Resolve(%q) expected error", n)
		}
	}
}

func TestEncodeDecode_Float32(t *testing.T) {
	r, _ := Resolve("AIN_ALL_RANGE")
	words, err := r.Encode(10)
	if err != nil {
		t.Fatalf("encode err=%v", err)
	}
	if len(words) != 2 || words[0] != 0x4120 || words[1] != 0x0000 {
		t.Fatalf("unexpected words %04x", words)
	}
	v, err := r.Decode(words)
	if err != nil || v != 10 {
		t.Fatalf("decode = %v, %v", v, err)
	}
}

func TestEncode_RangeChecks(t *testing.T) {
	r, _ := Resolve("AIN_ALL_NEGATIVE_CH")
	if _, err := r.Encode(-1); err == nil {
		t.Fatalf("expected range error")
	}
	if _, err := r.Encode(math.MaxUint16 + 1); err == nil {
		t.Fatalf("expected range error")
	}
	s, _ := Resolve("DEVICE_NAME_DEFAULT")
	if _, err := s.Encode(1); err == nil {
		t.Fatalf("expected type error for numeric write to string register")
	}
}

func TestEncodeString(t *testing.T) {
	r, _ := Resolve("DEVICE_NAME_DEFAULT")
	words, err := r.EncodeString("AB")
	if err != nil {
		t.Fatalf("encode err=%v", err)
	}
	if len(words) != r.Words() || words[0] != 0x4142 || words[1] != 0 {
		t.Fatalf("unexpected words %04x", words[:2])
	}
}

func TestByAddress(t *testing.T) {
	r, ok := ByAddress(4)
	if !ok || r.Name != "AIN2" {
		t.Fatalf("ByAddress(4) = %+v, %v", r, ok)
	}
	r, ok = ByAddress(2001)
	if !ok || r.Name != "DIO1" {
		t.Fatalf("ByAddress(2001) = %+v, %v", r, ok)
	}
	if _, ok := ByAddress(3); ok {
		t.Fatalf("odd AIN address should not resolve")
	}
}
