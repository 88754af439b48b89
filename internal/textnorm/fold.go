package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripCombining is a transform.Transformer that removes Unicode
// combining marks (category M) after NFD decomposition.
type stripCombining struct{ transform.NopResetter }

func (stripCombining) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		r, size := utf8.DecodeRune(src[nSrc:])
		if unicode.Is(unicode.M, r) {
			nSrc += size
			continue
		}
		if nDst+size > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		copy(dst[nDst:], src[nSrc:nSrc+size])
		nDst += size
		nSrc += size
	}
	return nDst, nSrc, nil
}

// Fold normalises a food name or query for comparison:
//  1. Lowercase
//  2. NFD decomposition, then strip combining marks (ä → a, é → e)
//  3. Replace non-letter/non-digit with space
//  4. Collapse runs of spaces, trim
//
// Commas are separators too; use BaseName before folding when the part
// ahead of the first comma matters.
func Fold(s string) string {
	s = strings.ToLower(s)

	t := transform.Chain(norm.NFD, stripCombining{}, norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		result = s
	}

	var sb strings.Builder
	sb.Grow(len(result))
	for _, r := range result {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// BaseName returns the text before the first comma, trimmed.
// "Kaurapuuro, vesi, suolaa" → "Kaurapuuro".
func BaseName(name string) string {
	if i := strings.IndexByte(name, ','); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

// FoldedBase is Fold(BaseName(name)).
func FoldedBase(name string) string {
	return Fold(BaseName(name))
}

// ContainsEither reports whether one folded string contains the other.
// Empty strings never match.
func ContainsEither(a, b string) bool {
	a, b = Fold(a), Fold(b)
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
