package xmltext

import "unicode/utf8"

var whitespaceLUT = [256]bool{'\t': true, '\n': true, '\r': true, ' ': true}

var nameStartByteLUT, nameByteLUT = func() ([utf8.RuneSelf]bool, [utf8.RuneSelf]bool) {
	var start, rest [utf8.RuneSelf]bool
	for b := 'a'; b <= 'z'; b++ {
		start[b], rest[b] = true, true
		start[b-'a'+'A'], rest[b-'a'+'A'] = true, true
	}
	for b := '0'; b <= '9'; b++ {
		rest[b] = true
	}
	start[':'], rest[':'] = true, true
	start['_'], rest['_'] = true, true
	rest['-'], rest['.'] = true, true
	return start, rest
}()

func isWhitespace(b byte) bool {
	return whitespaceLUT[b]
}

func isWhitespaceBytes(data []byte) bool {
	for _, b := range data {
		if !whitespaceLUT[b] {
			return false
		}
	}
	return true
}

// isValidXMLChar reports whether r is an XML 1.0 Char.
func isValidXMLChar(r rune) bool {
	switch {
	case r == 0x9 || r == 0xA || r == 0xD:
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	default:
		return false
	}
}

func validateXMLChars(data []byte) error {
	for len(data) > 0 {
		if data[0] < utf8.RuneSelf {
			if !isValidXMLChar(rune(data[0])) {
				return errInvalidChar
			}
			data = data[1:]
			continue
		}
		r, size := utf8.DecodeRune(data)
		if (r == utf8.RuneError && size == 1) || !isValidXMLChar(r) {
			return errInvalidChar
		}
		data = data[size:]
	}
	return nil
}

func isNameStartByte(b byte) bool {
	return b < utf8.RuneSelf && nameStartByteLUT[b]
}

func isNameByte(b byte) bool {
	return b < utf8.RuneSelf && nameByteLUT[b]
}

// isNameStartRune follows the XML 1.0 fifth edition NameStartChar ranges.
func isNameStartRune(r rune) bool {
	if r < utf8.RuneSelf {
		return isNameStartByte(byte(r))
	}
	switch {
	case r >= 0xC0 && r <= 0xD6,
		r >= 0xD8 && r <= 0xF6,
		r >= 0xF8 && r <= 0x2FF,
		r >= 0x370 && r <= 0x37D,
		r >= 0x37F && r <= 0x1FFF,
		r >= 0x200C && r <= 0x200D,
		r >= 0x2070 && r <= 0x218F,
		r >= 0x2C00 && r <= 0x2FEF,
		r >= 0x3001 && r <= 0xD7FF,
		r >= 0xF900 && r <= 0xFDCF,
		r >= 0xFDF0 && r <= 0xFFFD,
		r >= 0x10000 && r <= 0xEFFFF:
		return true
	}
	return false
}

func isNameRune(r rune) bool {
	if r < utf8.RuneSelf {
		return isNameByte(byte(r))
	}
	if isNameStartRune(r) {
		return true
	}
	return r == 0xB7 || (r >= 0x300 && r <= 0x36F) || (r >= 0x203F && r <= 0x2040)
}
