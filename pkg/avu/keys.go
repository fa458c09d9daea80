package avu

import (
	"bytes"
)

// Keys are sequences of byte strings. Each part is escaped so that it holds
// no 0x00 byte and is then terminated by 0x00, which keeps the byte order of
// encoded keys equal to the part-wise order of the strings:
//
//	0x00 -> 0x01 0x01
//	0x01 -> 0x01 0x02
//
// A key encoded from a prefix of parts is a byte prefix of every key that
// extends it.

func escape(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case 0x00, 0x01:
			dst = append(dst, 0x01, c+1)
		default:
			dst = append(dst, c)
		}
	}
	return dst
}

func encodeKey(parts ...string) []byte {
	n := 0
	for _, p := range parts {
		n += len(p) + 1
	}
	out := make([]byte, 0, n+4)
	for _, p := range parts {
		out = escape(out, p)
		out = append(out, 0)
	}
	return out
}

func decodeKey(key []byte) ([]string, error) {
	var parts []string
	var part []byte
	for i := 0; i < len(key); i++ {
		switch c := key[i]; c {
		case 0x00:
			parts = append(parts, string(part))
			part = part[:0]
		case 0x01:
			if i+1 >= len(key) || key[i+1] < 1 || key[i+1] > 2 {
				return nil, Error.New("bad escape at offset %d", i)
			}
			part = append(part, key[i+1]-1)
			i++
		default:
			part = append(part, c)
		}
	}
	if len(part) > 0 {
		return nil, Error.New("unterminated key part")
	}
	return parts, nil
}

// prefixOf returns the escaped bytes of s without a terminator, a byte prefix
// of every key whose next part starts with s.
func prefixOf(parts []string, s string) []byte {
	return escape(encodeKey(parts...), s)
}

func hasPrefix(key, prefix []byte) bool { return bytes.HasPrefix(key, prefix) }
