// Package bytesize parses the memory quantities used by max_memory_restart.
//
// Quantities are a decimal integer optionally followed by one of K, M, G or T
// (case-insensitive). Multiples are binary, so "4G" is 4 * 1024^3 bytes. A
// bare integer is a count of bytes.
package bytesize

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/cywhale/woa23/pkg/errors"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// ByteSize is a positive number of bytes. The zero value means "not set".
type ByteSize uint64

const (
	Byte     ByteSize = 1
	Kilobyte          = Byte << 10
	Megabyte          = Kilobyte << 10
	Gigabyte          = Megabyte << 10
	Terabyte          = Gigabyte << 10
)

// largest first, String relies on the order
var suffixes = []struct {
	suffix string
	unit   ByteSize
}{
	{"T", Terabyte},
	{"G", Gigabyte},
	{"M", Megabyte},
	{"K", Kilobyte},
}

// Parse converts a quantity such as "4G" or "512M" into bytes
func Parse(s string) (ByteSize, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, errors.NewValidationError("byte size cannot be empty", nil)
	}

	number := raw
	unit := Byte
	last := strings.ToUpper(raw[len(raw)-1:])
	if last < "0" || last > "9" {
		unit = 0
		for _, sfx := range suffixes {
			if sfx.suffix == last {
				unit = sfx.unit
				break
			}
		}
		if unit == 0 {
			return 0, errors.NewValidationError(fmt.Sprintf("unknown byte size suffix %q", raw[len(raw)-1:]), nil).
				WithContext("value", s).
				WithContext("supported_suffixes", "K, M, G, T")
		}
		number = raw[:len(raw)-1]
	}

	if number == "" || strings.IndexFunc(number, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return 0, errors.NewValidationError("byte size must be a whole positive number with an optional suffix", nil).
			WithContext("value", s)
	}

	n, err := strconv.ParseUint(number, 10, 64)
	if err != nil {
		return 0, errors.NewValidationError("byte size is out of range", err).WithContext("value", s)
	}
	if n == 0 {
		return 0, errors.NewValidationError("byte size must be positive", nil).WithContext("value", s)
	}
	if n > math.MaxUint64/uint64(unit) {
		return 0, errors.NewValidationError("byte size is out of range", nil).WithContext("value", s)
	}

	return ByteSize(n) * unit, nil
}

// MustParse is Parse for literals known to be valid
func MustParse(s string) ByteSize {
	b, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return b
}

// String renders the canonical form using the largest suffix that divides exactly
func (b ByteSize) String() string {
	if b == 0 {
		return "0"
	}
	for _, sfx := range suffixes {
		if b%sfx.unit == 0 {
			return strconv.FormatUint(uint64(b/sfx.unit), 10) + sfx.suffix
		}
	}
	return strconv.FormatUint(uint64(b), 10)
}

func (b ByteSize) Bytes() uint64 {
	return uint64(b)
}

func (b ByteSize) IsZero() bool {
	return b == 0
}

// MarshalYAML writes the canonical string; an unset size is written as null
func (b ByteSize) MarshalYAML() (interface{}, error) {
	if b == 0 {
		return nil, nil
	}
	return b.String(), nil
}

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
		*b = 0
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return errors.NewValidationError("byte size must be a scalar", nil).WithContext("line", value.Line)
	}
	parsed, err := Parse(value.Value)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func (b ByteSize) MarshalJSON() ([]byte, error) {
	if b == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(b.String())
}

// UnmarshalJSON accepts a quantity string, a whole number of bytes (exponent
// notation included, as in 4e9) or null
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var raw interface{}
	if err := decoder.Decode(&raw); err != nil {
		return errors.NewValidationError("byte size is not valid JSON", err)
	}

	var text string
	switch v := raw.(type) {
	case nil:
		*b = 0
		return nil
	case string:
		text = v
	case json.Number:
		n, err := wholeNumber(v.String())
		if err != nil {
			return err.WithContext("value", string(data))
		}
		text = strconv.FormatUint(n, 10)
	default:
		return errors.NewValidationError("byte size must be a string or a number", nil).
			WithContext("value", string(data))
	}

	parsed, err := Parse(text)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// wholeNumber converts a JSON number to bytes, rejecting fractions and values beyond uint64
func wholeNumber(number string) (uint64, *errors.DomainError) {
	if n, err := strconv.ParseUint(number, 10, 64); err == nil {
		return n, nil
	}

	f, _, err := big.ParseFloat(number, 10, 256, big.ToNearestEven)
	if err != nil {
		return 0, errors.NewValidationError("byte size is not a number", err)
	}
	if f.Sign() < 0 || !f.IsInt() {
		return 0, errors.NewValidationError("byte size must be a whole positive number", nil)
	}
	n, accuracy := f.Uint64()
	if accuracy != big.Exact {
		return 0, errors.NewValidationError("byte size is out of range", nil)
	}
	return n, nil
}
