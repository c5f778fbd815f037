package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultNomeProduto replaces a missing product name.
const DefaultNomeProduto = "Sem nome"

// DefaultMaxTextLength is the cap applied to package insert texts.
const DefaultMaxTextLength = 65000

// DateLayout is the only accepted date format.
const DateLayout = "2006-01-02 15:04:05"

var (
	minTimestamp = time.Date(1970, 1, 1, 0, 0, 1, 0, time.UTC)
	maxTimestamp = time.Date(2037, 12, 31, 23, 59, 59, 0, time.UTC)
)

// DatePolicy decides what happens to date-like fields.
type DatePolicy string

const (
	// DateValidate nulls values that do not parse or fall outside the
	// destination timestamp range.
	DateValidate DatePolicy = "validate"
	// DatePassthrough stores non-empty values unchanged.
	DatePassthrough DatePolicy = "passthrough"
)

// TextPolicy decides what happens to the long package insert texts.
type TextPolicy string

const (
	TextTruncate TextPolicy = "truncate"
	TextDrop     TextPolicy = "drop"
)

// TextUnit is what MaxTextLength counts.
type TextUnit string

const (
	// UnitBytes counts UTF-8 bytes and never splits a character.
	UnitBytes TextUnit = "bytes"
	// UnitChars counts unicode code points.
	UnitChars TextUnit = "chars"
)

// Policy configures Normalize.
type Policy struct {
	Dates         DatePolicy
	LongText      TextPolicy
	MaxTextLength int
	Unit          TextUnit
}

// DefaultPolicy is the streaming importer's policy.
func DefaultPolicy() Policy {
	return Policy{
		Dates:         DateValidate,
		LongText:      TextTruncate,
		MaxTextLength: DefaultMaxTextLength,
		Unit:          UnitBytes,
	}
}

// ParsePolicy builds a Policy from configuration strings.
func ParsePolicy(dates, longText, unit string, maxLen int) (Policy, error) {
	p := Policy{
		Dates:         DatePolicy(strings.ToLower(dates)),
		LongText:      TextPolicy(strings.ToLower(longText)),
		MaxTextLength: maxLen,
		Unit:          TextUnit(strings.ToLower(unit)),
	}
	switch p.Dates {
	case DateValidate, DatePassthrough:
	default:
		return p, fmt.Errorf("unknown date policy %q", dates)
	}
	switch p.LongText {
	case TextTruncate, TextDrop:
	default:
		return p, fmt.Errorf("unknown long text policy %q", longText)
	}
	switch p.Unit {
	case UnitBytes, UnitChars:
	default:
		return p, fmt.Errorf("unknown text unit %q", unit)
	}
	if p.MaxTextLength <= 0 {
		return p, fmt.Errorf("max text length must be positive, got %d", maxLen)
	}
	return p, nil
}

// Normalize maps raw onto a Row. It never fails: values it cannot use
// become nil or the column default.
func Normalize(raw map[string]any, p Policy) Row {
	var row Row

	for col := 0; col < ColumnCount; col++ {
		v := raw[sourceFields[col]]

		switch col {
		case ColNomeProduto:
			row[col] = withDefault(v, DefaultNomeProduto)
		case ColNumeroProcesso:
			row[col] = withDefault(v, "")
		case ColApresentacoes:
			row[col] = encodeNested(v)
		case ColBulaTxt, ColBulaTxtProfissional:
			row[col] = longText(v, p)
		case ColDataProduto, ColDataVencimentoRegistro, ColDataPublicacao:
			row[col] = date(v, p.Dates)
		default:
			row[col] = scalar(v)
		}
	}
	return row
}

// scalar renders v as text, or nil when absent.
func scalar(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		s, ok := compactJSON(t)
		if !ok {
			return nil
		}
		return s
	}
}

func withDefault(v any, def string) string {
	s, ok := scalar(v).(string)
	if !ok || s == "" {
		return def
	}
	return s
}

// encodeNested keeps strings as they are and serializes structures
// compactly. Empty values of either kind become nil.
func encodeNested(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return t
	case []any:
		if len(t) == 0 {
			return nil
		}
	case map[string]any:
		if len(t) == 0 {
			return nil
		}
	}
	s, ok := compactJSON(v)
	if !ok {
		return nil
	}
	return s
}

func compactJSON(v any) (string, bool) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", false
	}
	return strings.TrimSuffix(buf.String(), "\n"), true
}

func longText(v any, p Policy) any {
	if p.LongText == TextDrop {
		return nil
	}
	s, ok := scalar(v).(string)
	if !ok || s == "" {
		return nil
	}
	return Truncate(s, p.MaxTextLength, p.Unit)
}

// Truncate shortens s to at most max units without splitting a character.
func Truncate(s string, max int, unit TextUnit) string {
	if unit == UnitChars {
		if utf8.RuneCountInString(s) <= max {
			return s
		}
		n := 0
		for i := range s {
			if n == max {
				return s[:i]
			}
			n++
		}
		return s
	}

	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func date(v any, policy DatePolicy) any {
	s, ok := v.(string)
	if !ok {
		if policy == DatePassthrough {
			if r, ok := scalar(v).(string); ok && r != "" {
				return r
			}
		}
		return nil
	}
	if s == "" {
		return nil
	}
	if policy == DatePassthrough {
		return s
	}
	if !ValidTimestamp(s) {
		return nil
	}
	return s
}

// ValidTimestamp reports whether s is a DateLayout value inside the range a
// 32-bit TIMESTAMP column can hold.
func ValidTimestamp(s string) bool {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return false
	}
	return !t.Before(minTimestamp) && !t.After(maxTimestamp)
}
