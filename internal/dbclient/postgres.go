package dbclient

import (
	"fmt"
	"sort"
	"strings"

	_ "github.com/lib/pq"
)

// buildPostgresDSN constructs a Postgres connection string from a Connection.
func buildPostgresDSN(conn *Connection, password string) string {
	port := conn.Port
	if port == 0 {
		port = 5432
	}
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	parts := []string{
		"host=" + pqQuote(conn.Host),
		fmt.Sprintf("port=%d", port),
		"user=" + pqQuote(conn.Username),
		"password=" + pqQuote(password),
		"dbname=" + pqQuote(conn.Database),
		"sslmode=" + pqQuote(sslMode),
	}
	keys := make([]string, 0, len(conn.Extra))
	for k := range conn.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+pqQuote(conn.Extra[k]))
	}
	return strings.Join(parts, " ")
}

// pqQuote quotes a key/value connection string value when it needs it.
func pqQuote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
