package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// ChunkID derives the key of one chunk from its scope, source filename, and
// position. Characters outside [A-Za-z0-9_-=] become underscores, and a short
// hash of the raw scope and filename keeps IDs distinct when two names differ
// only in sanitized characters.
func ChunkID(scopeID, filename string, index int) string {
	h := sha256.Sum256([]byte(scopeID + "\x00" + filename))
	var b strings.Builder
	b.WriteString(sanitizeKey(scopeID))
	b.WriteByte('_')
	b.WriteString(sanitizeKey(filename))
	b.WriteByte('_')
	b.WriteString(strconv.Itoa(index))
	b.WriteByte('-')
	b.WriteString(hex.EncodeToString(h[:4]))
	return b.String()
}

// sanitizeKey replaces every character not allowed in an index key.
func sanitizeKey(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_', r == '-', r == '=':
			return r
		default:
			return '_'
		}
	}, s)
}
