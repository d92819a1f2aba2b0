package dbclient

import (
	"net"
	"strconv"

	_ "modernc.org/sqlite"
)

// buildSQLiteDSN opens an SQLite file in WAL mode with a busy timeout.
func buildSQLiteDSN(conn *Connection) string {
	return conn.Host + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
