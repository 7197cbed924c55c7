package parser

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decode returns the data as UTF-8 along with the detected encoding name.
// A UTF-8 or UTF-16 byte order mark wins. BOM-less data that is not valid
// UTF-8 is read as Latin-1.
func decode(data []byte) ([]byte, string, error) {
	encoding := "utf-8"
	switch {
	case bytes.HasPrefix(data, bomUTF16LE):
		encoding = "utf-16le"
	case bytes.HasPrefix(data, bomUTF16BE):
		encoding = "utf-16be"
	case !utf8.Valid(data):
		out, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
		if err != nil {
			return nil, "", fmt.Errorf("failed to decode latin-1 data: %w", err)
		}
		return out, "latin-1", nil
	}

	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode %s data: %w", encoding, err)
	}
	return out, encoding, nil
}
