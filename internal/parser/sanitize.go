package parser

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var bomUTF8 = []byte{0xEF, 0xBB, 0xBF}

// normalize prepares a payload for byte-sensitive formats: the UTF-8 byte
// order mark Windows tools prepend is dropped and invalid UTF-8 is
// replaced, so one bad byte cannot abort a whole import. Formats that do
// their own charset handling (feeds, HTML) take the raw stream instead.
func normalize(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if lead, err := br.Peek(3); err == nil && bytes.Equal(lead, bomUTF8) {
		br.Discard(3)
	}
	return &utf8Reader{src: br}
}

// utf8Reader replaces invalid UTF-8 bytes with '?' as data flows through.
// Multi-byte runes split across reads are handled by the buffered source.
type utf8Reader struct {
	src *bufio.Reader
	out []byte
}

func (u *utf8Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	var err error
	for len(u.out) < len(p) {
		var r rune
		var size int
		r, size, err = u.src.ReadRune()
		if err != nil {
			break
		}
		if r == utf8.RuneError && size == 1 {
			u.out = append(u.out, '?')
			continue
		}
		u.out = utf8.AppendRune(u.out, r)
	}
	n := copy(p, u.out)
	u.out = u.out[n:]
	if n > 0 {
		return n, nil
	}
	return 0, err
}
