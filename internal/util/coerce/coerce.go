package coerce

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNoMatchingFormat is returned when text matches none of the accepted layouts.
	ErrNoMatchingFormat = errors.New("no matching format")
	// ErrOutOfRange is returned when a number does not fit the field kind.
	ErrOutOfRange = errors.New("out of range")
)

// Kind is the native type of a member field.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFlag // small integer, fits int8
	KindDate
	KindDateTime
)

//nolint:gochecknoglobals
var kindNames = map[Kind]string{
	KindString:   "string",
	KindInt:      "int",
	KindFlag:     "flag",
	KindDate:     "date",
	KindDateTime: "datetime",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return "kind(" + strconv.Itoa(int(k)) + ")"
}

const (
	// DateLayout is the textual form of date-only values.
	DateLayout = "2006-01-02"
	// DateTimeLayout is the natural textual form of date-time values.
	DateTimeLayout = "2006-01-02T15:04:05.999999999"
)

// Date-time layouts, tried in order after the epoch-millis form.
//
//nolint:gochecknoglobals
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	DateLayout,
}

// ParseError reports host-supplied text that could not be parsed for a field kind.
type ParseError struct {
	Kind Kind
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %v", e.Kind, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseInt parses a decimal integer.
func ParseInt(text string) (int64, error) {
	text = strings.TrimSpace(text)

	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, &ParseError{Kind: KindInt, Text: text, Err: unwrapNumError(err)}
	}

	return n, nil
}

// ParseFlag parses a decimal integer that must fit a signed byte.
func ParseFlag(text string) (int64, error) {
	text = strings.TrimSpace(text)

	n, err := strconv.ParseInt(text, 10, 8)
	if err != nil {
		return 0, &ParseError{Kind: KindFlag, Text: text, Err: unwrapNumError(err)}
	}

	return n, nil
}

// ParseDate parses YYYY-MM-DD into midnight UTC.
func ParseDate(text string) (time.Time, error) {
	text = strings.TrimSpace(text)

	t, err := time.Parse(DateLayout, text)
	if err != nil {
		return time.Time{}, &ParseError{Kind: KindDate, Text: text, Err: ErrNoMatchingFormat}
	}

	return t, nil
}

// ParseDateTime accepts, in order: a digit-only epoch millisecond count,
// ISO-8601 date-time, "YYYY-MM-DD HH:MM[:SS]" and a bare date at midnight.
// Zoneless input is read as UTC and the result is always in UTC.
func ParseDateTime(text string) (time.Time, error) {
	text = strings.TrimSpace(text)

	if isDigits(text) {
		millis, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return time.Time{}, &ParseError{Kind: KindDateTime, Text: text, Err: unwrapNumError(err)}
		}

		return time.UnixMilli(millis).UTC(), nil
	}

	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, &ParseError{Kind: KindDateTime, Text: text, Err: ErrNoMatchingFormat}
}

// FormatInt renders an integer in decimal.
func FormatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// FormatDateTime renders a date-time in its natural ISO form, in UTC.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format(DateTimeLayout)
}

// FormatEpochMillis renders a date-time as its millisecond epoch count.
func FormatEpochMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Bind converts a native field value to the parameter bound in a statement.
// Dates bind as YYYY-MM-DD, date-times as UTC timestamps, nil as NULL.
func Bind(kind Kind, value any) any {
	t, ok := value.(time.Time)
	if !ok {
		return value
	}

	switch kind {
	case KindDate:
		return FormatDate(t)
	case KindDateTime:
		return t.UTC()
	default:
		return value
	}
}

// WallClockUTC reinterprets the wall clock of t as UTC. Temporal columns are
// zoneless, so the driver's location carries no meaning.
func WallClockUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

func unwrapNumError(err error) error {
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		if errors.Is(numErr.Err, strconv.ErrRange) {
			return ErrOutOfRange
		}

		return ErrNoMatchingFormat
	}

	return err
}
