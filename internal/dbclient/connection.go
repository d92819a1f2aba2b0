package dbclient

import (
	"fmt"
	"strings"
)

// Driver names a database backend.
type Driver string

const (
	DriverMySQL    Driver = "mysql"
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
	DriverMongoDB  Driver = "mongodb"
)

// Connection holds what is needed to reach an external database.
// The password travels separately so a Connection can be logged or
// written to a jobs file.
type Connection struct {
	Driver   Driver            `json:"driver" yaml:"driver"`
	Host     string            `json:"host" yaml:"host"`         // hostname, file path (sqlite) or full mongodb URI
	Port     int               `json:"port" yaml:"port"`         // 0 picks the driver default
	Database string            `json:"database" yaml:"database"` // empty for sqlite
	Username string            `json:"username" yaml:"username"`
	SSLMode  string            `json:"sslMode" yaml:"sslMode"`
	Extra    map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"` // driver-specific query parameters
}

// Validate reports a missing driver or host.
func (c *Connection) Validate() error {
	switch c.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite, DriverMongoDB:
	case "":
		return fmt.Errorf("connection driver is required")
	default:
		return fmt.Errorf("unsupported driver: %s", c.Driver)
	}
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("%s connection: host is required", c.Driver)
	}
	return nil
}
