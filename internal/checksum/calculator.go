package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/vsayer/materialize/pkg/catalog"
)

// Raw returns the SHA-256 of content without normalization.
func Raw(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// Definition returns the fingerprint of a SQL definition.
func Definition(sql string) string {
	return Raw([]byte(normalize(sql)))
}

// Columns returns the fingerprint of a relation's column list. Column order
// is significant.
func Columns(cols []catalog.Column) string {
	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.Name)
		b.WriteByte(' ')
		b.WriteString(c.Type)
	}
	return Definition(b.String())
}

type scanState int

const (
	stNormal scanState = iota
	stLineComment
	stBlockComment
	stString
)

// normalize strips comments, lowercases text outside string literals and
// collapses runs of whitespace to one space.
func normalize(content string) string {
	var b strings.Builder
	b.Grow(len(content))

	state := stNormal
	depth := 0
	pendingSpace := false
	emit := func(r rune) {
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteRune(r)
	}

	runes := []rune(content)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		switch state {
		case stNormal:
			switch {
			case r == '-' && next == '-':
				state = stLineComment
				pendingSpace = true
				i++
			case r == '/' && next == '*':
				state = stBlockComment
				depth = 1
				pendingSpace = true
				i++
			case r == '\'':
				state = stString
				emit(r)
			case unicode.IsSpace(r):
				pendingSpace = true
			default:
				emit(unicode.ToLower(r))
			}
		case stLineComment:
			if r == '\n' {
				state = stNormal
			}
		case stBlockComment:
			switch {
			case r == '/' && next == '*':
				depth++
				i++
			case r == '*' && next == '/':
				depth--
				i++
				if depth == 0 {
					state = stNormal
				}
			}
		case stString:
			b.WriteRune(r)
			if r == '\'' {
				if next == '\'' {
					b.WriteRune(next)
					i++
				} else {
					state = stNormal
				}
			}
		}
	}
	return b.String()
}
