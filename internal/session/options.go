// internal/session/options.go
package session

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/tamzrod/labjack-streamer/internal/fault"
	"github.com/tamzrod/labjack-streamer/internal/regmap"
	"github.com/tamzrod/labjack-streamer/internal/transport"
)

// Value is a configuration value: numeric or text.
type Value struct {
	num  float64
	str  string
	text bool
}

// Number returns a numeric Value.
func Number(v float64) Value { return Value{num: v} }

// Text returns a text Value.
func Text(s string) Value { return Value{str: s, text: true} }

func (v Value) IsText() bool { return v.text }

func (v Value) Float() float64 { return v.num }

func (v Value) TextValue() string { return v.str }

func (v Value) String() string {
	if v.text {
		return strconv.Quote(v.str)
	}
	return strconv.FormatFloat(v.num, 'g', -1, 64)
}

// LibraryOption is one name of the library configuration vocabulary.
type LibraryOption string

const (
	LibStreamScansReturn        LibraryOption = transport.LibStreamScansReturn
	LibStreamReceiveTimeoutMS   LibraryOption = transport.LibStreamReceiveTimeoutMS
	LibSendReceiveTimeoutMS     LibraryOption = transport.LibSendReceiveTimeoutMS
	LibStreamTransfersPerSecond LibraryOption = transport.LibStreamTransfersPerSecond
	LibDebugLogMode             LibraryOption = transport.LibDebugLogMode
	LibDebugLogFile             LibraryOption = transport.LibDebugLogFile
)

// libraryText marks the options that take text values.
var libraryText = map[LibraryOption]bool{
	LibStreamScansReturn:        false,
	LibStreamReceiveTimeoutMS:   false,
	LibSendReceiveTimeoutMS:     false,
	LibStreamTransfersPerSecond: false,
	LibDebugLogMode:             false,
	LibDebugLogFile:             true,
}

// ParseLibraryOption validates name against the library vocabulary.
func ParseLibraryOption(name string) (LibraryOption, error) {
	o := LibraryOption(name)
	if _, ok := libraryText[o]; !ok {
		return "", fmt.Errorf("session: unknown library option %q", name)
	}
	return o, nil
}

// LibraryOptions configures the transport library. Not device registers.
type LibraryOptions map[LibraryOption]Value

func (o LibraryOptions) validate() error {
	if len(o) == 0 {
		return fault.Validation("no library configuration given")
	}
	for name, v := range o {
		text, ok := libraryText[name]
		if !ok {
			return fault.Validation("unknown library option %q", string(name))
		}
		if text != v.IsText() {
			return fault.Validation("library option %s: wrong value kind %s", name, v)
		}
	}
	return nil
}

func (o LibraryOptions) sortedNames() []LibraryOption {
	names := make([]LibraryOption, 0, len(o))
	for n := range o {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// RegisterOptions configures device registers by Modbus map name.
type RegisterOptions map[string]Value

func (o RegisterOptions) validate() error {
	if len(o) == 0 {
		return fault.Validation("no register configuration given")
	}
	for name, v := range o {
		r, err := regmap.Resolve(name)
		if err != nil {
			return fault.Validation("register option %q: %v", name, err)
		}
		if (r.Type == regmap.String) != v.IsText() {
			return fault.Validation("register option %s (%s): wrong value kind %s", name, r.Type, v)
		}
		if !v.IsText() {
			if _, err := r.Encode(v.Float()); err != nil {
				return fault.Validation("register option %s: %v", name, err)
			}
		}
	}
	return nil
}

// split separates text and numeric entries, each sorted by name.
func (o RegisterOptions) split() (textNames []string, numNames []string, numValues []float64) {
	names := make([]string, 0, len(o))
	for n := range o {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		v := o[n]
		if v.IsText() {
			textNames = append(textNames, n)
			continue
		}
		numNames = append(numNames, n)
		numValues = append(numValues, v.Float())
	}
	return textNames, numNames, numValues
}
