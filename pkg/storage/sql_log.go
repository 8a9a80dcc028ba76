package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FormatSQLForLog interpolates positional parameters into a SQL statement for
// logging only. The result must never be executed.
func FormatSQLForLog(query string, args ...any) string {
	query = strings.Join(strings.Fields(query), " ")
	if query == "" || len(args) == 0 {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + len(args)*8)
	argIdx := 0
	for _, ch := range query {
		if ch == '?' && argIdx < len(args) {
			b.WriteString(formatSQLArg(args[argIdx]))
			argIdx++
			continue
		}
		b.WriteRune(ch)
	}
	if argIdx < len(args) {
		b.WriteString(" /* args:")
		for i := argIdx; i < len(args); i++ {
			if i > argIdx {
				b.WriteString(",")
			}
			b.WriteString(" ")
			b.WriteString(formatSQLArg(args[i]))
		}
		b.WriteString(" */")
	}
	return b.String()
}

func formatSQLArg(arg any) string {
	switch v := arg.(type) {
	case nil:
		return "NULL"
	case *int64:
		if v == nil {
			return "NULL"
		}
		return fmt.Sprintf("%d", *v)
	case string:
		return quoteSQL(v)
	case []byte:
		return quoteSQL(string(v))
	case time.Time:
		return quoteSQL(v.Format(time.RFC3339Nano))
	case fmt.Stringer:
		return quoteSQL(v.String())
	default:
		return fmt.Sprintf("%v", arg)
	}
}

func quoteSQL(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func logStatement(query string, args ...any) {
	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		return
	}
	log.Debug().Str("sql", FormatSQLForLog(query, args...)).Msg("storage: exec")
}
