package xmltext

import (
	"bytes"
	"unicode/utf8"
)

type entityResolver struct {
	custom map[string]string
}

var standardEntities = map[string]string{
	"lt":   "<",
	"gt":   ">",
	"amp":  "&",
	"apos": "'",
	"quot": "\"",
}

func (r *entityResolver) resolve(name string) (string, bool) {
	if value, ok := standardEntities[name]; ok {
		return value, true
	}
	if r == nil || r.custom == nil {
		return "", false
	}
	value, ok := r.custom[name]
	return value, ok
}

// unescapeInto appends data to dst with entity references expanded. A
// positive limit bounds the expanded length.
func unescapeInto(dst, data []byte, resolver *entityResolver, limit int) ([]byte, error) {
	start := len(dst)
	for i := 0; i < len(data); {
		amp := bytes.IndexByte(data[i:], '&')
		if amp < 0 {
			dst = append(dst, data[i:]...)
			break
		}
		dst = append(dst, data[i:i+amp]...)
		i += amp
		consumed, replacement, r, numeric, err := parseEntityRef(data, i, resolver)
		if err != nil {
			return nil, err
		}
		if numeric {
			dst = utf8.AppendRune(dst, r)
		} else {
			dst = append(dst, replacement...)
		}
		if limit > 0 && len(dst)-start > limit {
			return nil, ErrTokenTooLarge
		}
		i += consumed
	}
	if limit > 0 && len(dst)-start > limit {
		return nil, ErrTokenTooLarge
	}
	return dst, nil
}

// validateEntities checks every reference in data without expanding it.
func validateEntities(data []byte, resolver *entityResolver) error {
	for i := 0; i < len(data); {
		amp := bytes.IndexByte(data[i:], '&')
		if amp < 0 {
			return nil
		}
		i += amp
		consumed, _, _, _, err := parseEntityRef(data, i, resolver)
		if err != nil {
			return err
		}
		i += consumed
	}
	return nil
}

func parseEntityRef(data []byte, start int, resolver *entityResolver) (int, string, rune, bool, error) {
	if start+1 >= len(data) {
		return 0, "", 0, false, errInvalidEntity
	}
	semi := bytes.IndexByte(data[start+1:], ';')
	if semi <= 0 {
		return 0, "", 0, false, errInvalidEntity
	}
	semi += start + 1
	ref := data[start+1 : semi]
	consumed := semi - start + 1
	if ref[0] == '#' {
		r, err := parseNumericEntity(ref)
		if err != nil {
			return 0, "", 0, false, err
		}
		return consumed, "", r, true, nil
	}
	replacement, ok := resolver.resolve(string(ref))
	if !ok {
		return 0, "", 0, false, errInvalidEntity
	}
	if err := validateXMLChars([]byte(replacement)); err != nil {
		return 0, "", 0, false, err
	}
	return consumed, replacement, 0, false, nil
}

func parseNumericEntity(ref []byte) (rune, error) {
	if len(ref) < 2 {
		return 0, errInvalidCharRef
	}
	base := 10
	digits := ref[1:]
	if digits[0] == 'x' {
		base = 16
		digits = digits[1:]
	}
	if len(digits) == 0 {
		return 0, errInvalidCharRef
	}
	var value rune
	for _, b := range digits {
		var digit byte
		switch {
		case b >= '0' && b <= '9':
			digit = b - '0'
		case base == 16 && b >= 'a' && b <= 'f':
			digit = b - 'a' + 10
		case base == 16 && b >= 'A' && b <= 'F':
			digit = b - 'A' + 10
		default:
			return 0, errInvalidCharRef
		}
		value = value*rune(base) + rune(digit)
		if value > utf8.MaxRune {
			return 0, errInvalidCharRef
		}
	}
	if !isValidXMLChar(value) {
		return 0, errInvalidCharRef
	}
	return value, nil
}
