// internal/regmap/regmap.go
package regmap

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DataType is the Modbus encoding of a register.
type DataType uint8

const (
	Uint16 DataType = iota
	Uint32
	Int32
	Float32
	String
)

// stringBytes is the fixed byte width of string registers.
const stringBytes = 50

func (t DataType) String() string {
	switch t {
	case Uint16:
		return "UINT16"
	case Uint32:
		return "UINT32"
	case Int32:
		return "INT32"
	case Float32:
		return "FLOAT32"
	case String:
		return "STRING"
	default:
		return "UNKNOWN"
	}
}

// Register is one resolved entry of the device Modbus map.
type Register struct {
	Name    string
	Address int
	Type    DataType
}

// Words is the number of 16-bit Modbus registers the value spans.
func (r Register) Words() int {
	switch r.Type {
	case Uint16:
		return 1
	case String:
		return stringBytes / 2
	default:
		return 2
	}
}

// Encode converts a numeric value to big-endian register words.
func (r Register) Encode(v float64) ([]uint16, error) {
	switch r.Type {
	case Uint16:
		if v < 0 || v > math.MaxUint16 {
			return nil, fmt.Errorf("regmap: %s: value %g out of UINT16 range", r.Name, v)
		}
		return []uint16{uint16(v)}, nil
	case Uint32:
		if v < 0 || v > math.MaxUint32 {
			return nil, fmt.Errorf("regmap: %s: value %g out of UINT32 range", r.Name, v)
		}
		return splitWords(uint32(v)), nil
	case Int32:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return nil, fmt.Errorf("regmap: %s: value %g out of INT32 range", r.Name, v)
		}
		return splitWords(uint32(int32(v))), nil
	case Float32:
		return splitWords(math.Float32bits(float32(v))), nil
	default:
		return nil, fmt.Errorf("regmap: %s: %s register takes a string value", r.Name, r.Type)
	}
}

// EncodeString converts text to register words, NUL padded.
func (r Register) EncodeString(s string) ([]uint16, error) {
	if r.Type != String {
		return nil, fmt.Errorf("regmap: %s: %s register takes a numeric value", r.Name, r.Type)
	}
	if len(s) >= stringBytes {
		return nil, fmt.Errorf("regmap: %s: string longer than %d bytes", r.Name, stringBytes-1)
	}
	b := make([]byte, stringBytes)
	copy(b, s)
	out := make([]uint16, stringBytes/2)
	for i := range out {
		out[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return out, nil
}

// Decode converts register words back to a numeric value.
func (r Register) Decode(words []uint16) (float64, error) {
	if len(words) < r.Words() {
		return 0, fmt.Errorf("regmap: %s: need %d words, got %d", r.Name, r.Words(), len(words))
	}
	switch r.Type {
	case Uint16:
		return float64(words[0]), nil
	case Uint32:
		return float64(joinWords(words)), nil
	case Int32:
		return float64(int32(joinWords(words))), nil
	case Float32:
		return float64(math.Float32frombits(joinWords(words))), nil
	default:
		return 0, fmt.Errorf("regmap: %s: cannot decode %s as number", r.Name, r.Type)
	}
}

func splitWords(u uint32) []uint16 {
	return []uint16{uint16(u >> 16), uint16(u)}
}

func joinWords(w []uint16) uint32 {
	return uint32(w[0])<<16 | uint32(w[1])
}

var fixed = map[string]Register{
	"STREAM_SCANRATE_HZ":        {Address: 4002, Type: Float32},
	"STREAM_NUM_ADDRESSES":      {Address: 4004, Type: Uint32},
	"STREAM_SAMPLES_PER_PACKET": {Address: 4006, Type: Uint32},
	"STREAM_SETTLING_US":        {Address: 4008, Type: Float32},
	"STREAM_RESOLUTION_INDEX":   {Address: 4010, Type: Uint32},
	"STREAM_BUFFER_SIZE_BYTES":  {Address: 4012, Type: Uint32},
	"STREAM_CLOCK_SOURCE":       {Address: 4014, Type: Uint32},
	"STREAM_AUTO_TARGET":        {Address: 4016, Type: Uint32},
	"STREAM_NUM_SCANS":          {Address: 4020, Type: Uint32},
	"STREAM_TRIGGER_INDEX":      {Address: 4024, Type: Uint32},
	"STREAM_ENABLE":             {Address: 4990, Type: Uint32},

	"AIN_ALL_RANGE":            {Address: 43900, Type: Float32},
	"AIN_ALL_NEGATIVE_CH":      {Address: 43902, Type: Uint16},
	"AIN_ALL_RESOLUTION_INDEX": {Address: 43903, Type: Uint16},
	"AIN_ALL_SETTLING_US":      {Address: 43904, Type: Float32},

	"DIO_STATE": {Address: 2800, Type: Uint32},

	"ETHERNET_IP":      {Address: 49100, Type: Uint32},
	"WIFI_IP":          {Address: 49200, Type: Uint32},
	"LAST_ERR_DETAIL":  {Address: 55000, Type: Uint32},
	"PRODUCT_ID":       {Address: 60000, Type: Float32},
	"HARDWARE_VERSION": {Address: 60002, Type: Float32},
	"FIRMWARE_VERSION": {Address: 60004, Type: Float32},
	"SERIAL_NUMBER":    {Address: 60028, Type: Uint32},

	"DEVICE_NAME_DEFAULT": {Address: 60500, Type: String},
}

// family is an indexed register group such as AIN#_RANGE.
type family struct {
	prefix string
	suffix string
	max    int
	base   int
	stride int
	typ    DataType
}

var families = []family{
	{prefix: "AIN", suffix: "", max: 254, base: 0, stride: 2, typ: Float32},
	{prefix: "AIN", suffix: "_RANGE", max: 254, base: 40000, stride: 2, typ: Float32},
	{prefix: "AIN", suffix: "_NEGATIVE_CH", max: 254, base: 41000, stride: 1, typ: Uint16},
	{prefix: "AIN", suffix: "_RESOLUTION_INDEX", max: 254, base: 41500, stride: 1, typ: Uint16},
	{prefix: "AIN", suffix: "_SETTLING_US", max: 254, base: 42000, stride: 2, typ: Float32},
	{prefix: "DIO", suffix: "", max: 22, base: 2000, stride: 1, typ: Uint16},
	{prefix: "DIO", suffix: "_EF_READ_A", max: 22, base: 3000, stride: 2, typ: Uint32},
	{prefix: "DIO", suffix: "_EF_ENABLE", max: 22, base: 44000, stride: 2, typ: Uint32},
	{prefix: "DIO", suffix: "_EF_INDEX", max: 22, base: 44100, stride: 2, typ: Uint32},
	{prefix: "DIO", suffix: "_EF_OPTIONS", max: 22, base: 44200, stride: 2, typ: Uint32},
	{prefix: "DIO", suffix: "_EF_CONFIG_A", max: 22, base: 44300, stride: 2, typ: Uint32},
	{prefix: "DIO", suffix: "_EF_CONFIG_B", max: 22, base: 44400, stride: 2, typ: Uint32},
	{prefix: "STREAM_SCANLIST_ADDRESS", suffix: "", max: 127, base: 4100, stride: 2, typ: Uint32},
}

// dioAliases maps the FIO/EIO/CIO/MIO names onto the DIO numbering.
var dioAliases = []struct {
	prefix string
	offset int
	count  int
}{
	{"FIO", 0, 8},
	{"EIO", 8, 8},
	{"CIO", 16, 4},
	{"MIO", 20, 3},
}

// Resolve looks up a register by name.
func Resolve(name string) (Register, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if r, ok := fixed[n]; ok {
		r.Name = n
		return r, nil
	}

	canon := canonicalDIO(n)
	for _, f := range families {
		idx, ok := indexOf(canon, f.prefix, f.suffix)
		if !ok || idx > f.max {
			continue
		}
		return Register{
			Name:    n,
			Address: f.base + idx*f.stride,
			Type:    f.typ,
		}, nil
	}
	return Register{}, fmt.Errorf("regmap: unknown register %q", name)
}

// ResolveAll resolves names in order, failing on the first unknown name.
func ResolveAll(names []string) ([]Register, error) {
	out := make([]Register, 0, len(names))
	for _, n := range names {
		r, err := Resolve(n)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Addresses resolves names to their Modbus addresses.
func Addresses(names []string) ([]int, error) {
	regs, err := ResolveAll(names)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(regs))
	for i, r := range regs {
		out[i] = r.Address
	}
	return out, nil
}

// ByAddress finds the AIN or DIO register at addr. Stream scan lists only
// carry addresses, so the poller needs the reverse lookup.
func ByAddress(addr int) (Register, bool) {
	for _, f := range families[:1] {
		if addr >= f.base && addr <= f.base+f.max*f.stride && (addr-f.base)%f.stride == 0 {
			return Register{Name: f.prefix + strconv.Itoa((addr-f.base)/f.stride), Address: addr, Type: f.typ}, true
		}
	}
	dio := families[5]
	if addr >= dio.base && addr <= dio.base+dio.max {
		return Register{Name: "DIO" + strconv.Itoa(addr-dio.base), Address: addr, Type: dio.typ}, true
	}
	return Register{}, false
}

// DIOIndex returns the DIO number for a digital line name (DIO#, FIO#, ...).
func DIOIndex(name string) (int, bool) {
	n := canonicalDIO(strings.ToUpper(strings.TrimSpace(name)))
	idx, ok := indexOf(n, "DIO", "")
	if !ok || idx > 22 {
		return 0, false
	}
	return idx, true
}

func canonicalDIO(n string) string {
	for _, a := range dioAliases {
		if !strings.HasPrefix(n, a.prefix) {
			continue
		}
		rest := n[len(a.prefix):]
		end := 0
		for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
			end++
		}
		if end == 0 {
			return n
		}
		idx, err := strconv.Atoi(rest[:end])
		if err != nil || idx >= a.count {
			return n
		}
		return "DIO" + strconv.Itoa(a.offset+idx) + rest[end:]
	}
	return n
}

func indexOf(n, prefix, suffix string) (int, bool) {
	if !strings.HasPrefix(n, prefix) || !strings.HasSuffix(n, suffix) {
		return 0, false
	}
	digits := n[len(prefix) : len(n)-len(suffix)]
	if digits == "" {
		return 0, false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	idx, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return idx, true
}
