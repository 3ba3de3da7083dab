package storage

import "strconv"

// Rebind rewrites '?' placeholders to Postgres-style $1..$N. Question marks
// inside single-quoted string literals are left alone. Backends whose driver
// accepts '?' natively (SQLite) can use the query unchanged.
func Rebind(query string) string {
	buf := make([]byte, 0, len(query)+8)
	n := 0
	inString := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inString = !inString
			buf = append(buf, c)
		case c == '?' && !inString:
			n++
			buf = append(buf, '$')
			buf = strconv.AppendInt(buf, int64(n), 10)
		default:
			buf = append(buf, c)
		}
	}
	return string(buf)
}
