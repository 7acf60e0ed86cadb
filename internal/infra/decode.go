package infra

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

const DefaultEncoding = "utf-8"

// LineDecoder turns raw line bytes into text. Malformed sequences become
// U+FFFD instead of failing the run.
type LineDecoder struct {
	name string
	enc  encoding.Encoding
}

func NewLineDecoder(name string) (*LineDecoder, error) {
	if name == "" {
		name = DefaultEncoding
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}

	// output is split on '\n' before decoding
	nl, err := enc.NewEncoder().Bytes([]byte("\n"))
	if err != nil || !bytes.Equal(nl, []byte("\n")) {
		return nil, fmt.Errorf("encoding %q is not ASCII compatible", name)
	}

	return &LineDecoder{name: name, enc: enc}, nil
}

func (d *LineDecoder) Name() string {
	return d.name
}

// Decode strips the line terminator and decodes raw.
func (d *LineDecoder) Decode(raw []byte) string {
	raw = bytes.TrimRight(raw, "\r\n")
	if len(raw) == 0 {
		return ""
	}

	if d.enc == unicode.UTF8 && utf8.Valid(raw) {
		return string(raw)
	}

	out, err := d.enc.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
	}
	return string(out)
}
