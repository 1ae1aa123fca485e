package middleware

import (
	"fmt"
	"strings"

	"github.com/vova616/xxhash"
)

// cleanPath collapses repeated slashes so equivalent requests log the same path.
func cleanPath(path string) string {
	var b strings.Builder
	for _, c := range strings.Split(path, "/") {
		if c != "" {
			b.WriteString("/")
			b.WriteString(c)
		}
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// queryHash hashes the raw query string so parameters are never logged in the clear.
func queryHash(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	return fmt.Sprintf("%#x", xxhash.Checksum32([]byte(rawQuery)))
}
