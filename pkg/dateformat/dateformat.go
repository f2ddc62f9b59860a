// Package dateformat translates moment-style log_date_format strings such as
// "YYYY-MM-DD HH:mm Z" into Go time layouts.
package dateformat

import (
	"fmt"
	"strings"
	"time"

	"github.com/cywhale/woa23/pkg/errors"
)

// ordered so that longer tokens win over their prefixes
var tokens = []struct {
	token  string
	layout string
}{
	{"YYYY", "2006"},
	{"YY", "06"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"MM", "01"},
	{"M", "1"},
	{"dddd", "Monday"},
	{"ddd", "Mon"},
	{"DD", "02"},
	{"D", "2"},
	{"HH", "15"},
	{"hh", "03"},
	{"h", "3"},
	{"mm", "04"},
	{"m", "4"},
	{"ss", "05"},
	{"s", "5"},
	{"SSS", "000"},
	{"SS", "00"},
	{"S", "0"},
	{"ZZ", "-0700"},
	{"Z", "-07:00"},
	{"A", "PM"},
	{"a", "pm"},
}

// letters moment treats as tokens; any of these left unmatched is unsupported
const reserved = "YyMQDdEeWwHhkmsSZXxAaGgNno"

// Go layout elements that can be spelled with letters alone
var letterElements = []string{"January", "Jan", "Monday", "Mon", "MST", "PM", "pm", "Z07"}

// segment is one piece of the layout; adjacent literal text shares a segment
type segment struct {
	text    string
	literal bool
}

// ToLayout converts a moment-style format into a Go time layout
func ToLayout(format string) (string, error) {
	if format == "" {
		return "", errors.NewValidationError("date format cannot be empty", nil)
	}

	var segments []segment
	appendLiteral := func(text string) {
		if n := len(segments); n > 0 && segments[n-1].literal {
			segments[n-1].text += text
			return
		}
		segments = append(segments, segment{text: text, literal: true})
	}

	for i := 0; i < len(format); {
		if format[i] == '[' {
			end := strings.IndexByte(format[i:], ']')
			if end < 0 {
				return "", errors.NewValidationError("unterminated literal in date format", nil).
					WithContext("format", format).WithContext("position", i)
			}
			appendLiteral(format[i+1 : i+end])
			i += end + 1
			continue
		}

		matched := false
		for _, t := range tokens {
			if strings.HasPrefix(format[i:], t.token) {
				if strings.HasPrefix(t.token, "S") {
					if err := checkFraction(segments, format); err != nil {
						return "", err
					}
				}
				segments = append(segments, segment{text: t.layout})
				i += len(t.token)
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		c := format[i]
		if strings.IndexByte(reserved, c) >= 0 {
			return "", errors.NewValidationError(fmt.Sprintf("unsupported date format token %q", string(c)), nil).
				WithContext("format", format).WithContext("position", i)
		}
		appendLiteral(string(c))
		i++
	}

	var layout strings.Builder
	for i, seg := range segments {
		if seg.literal {
			var before, after string
			if i > 0 {
				before = segments[i-1].text
			}
			if i+1 < len(segments) {
				after = segments[i+1].text
			}
			if err := checkLiteral(before, seg.text, after, format); err != nil {
				return "", err
			}
		}
		layout.WriteString(seg.text)
	}
	return layout.String(), nil
}

// Go reads fractional seconds only right after a '.' or ','
func checkFraction(segments []segment, format string) error {
	if n := len(segments); n > 0 && segments[n-1].literal {
		text := segments[n-1].text
		if strings.HasSuffix(text, ".") || strings.HasSuffix(text, ",") {
			return nil
		}
	}
	return errors.NewValidationError("fractional seconds must follow '.' or ','", nil).WithContext("format", format)
}

// Go has no escaping, so literal text must not contain anything time.Format
// would substitute, alone or joined with the layout around it
func checkLiteral(before, literal, after, format string) error {
	for _, c := range literal {
		if (c >= '0' && c <= '9') || c == '_' {
			return errors.NewValidationError("digits and underscores are not allowed in date format literals", nil).
				WithContext("format", format).WithContext("literal", literal)
		}
	}

	joined := before + literal + after
	for _, element := range letterElements {
		if strings.Count(joined, element) > strings.Count(before, element)+strings.Count(after, element) {
			return errors.NewValidationError(fmt.Sprintf("literal %q collides with a layout element", literal), nil).
				WithContext("format", format).WithContext("element", element)
		}
	}
	return nil
}

// Format renders t using a moment-style format
func Format(t time.Time, format string) (string, error) {
	layout, err := ToLayout(format)
	if err != nil {
		return "", err
	}
	return t.Format(layout), nil
}
