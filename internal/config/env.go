// Package config loads database settings from the environment and
// scheduled jobs from a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"dataeng/internal/dbclient"
)

// Environment variables shared with the course scripts.
const (
	EnvDBHost = "DBHOST"
	EnvDBUser = "DBUSER"
	EnvDBPass = "DBPASS"
	EnvDB     = "DB"
	EnvDBPort = "DBPORT"

	EnvMongoURL  = "MONGODB_ATLAS_URL"
	EnvMongoUser = "MONGODB_ATLAS_USER"
	EnvMongoPwd  = "MONGODB_ATLAS_PWD"
)

// Database is a connection plus the password that goes with it.
type Database struct {
	Conn     dbclient.Connection
	Password string
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// MySQLFromEnv reads DBHOST, DBUSER, DBPASS and DB. defaultDB is used
// when DB is unset.
func MySQLFromEnv(defaultDB string) Database {
	return sqlFromEnv(dbclient.DriverMySQL, defaultDB)
}

func sqlFromEnv(driver dbclient.Driver, defaultDB string) Database {
	return Database{
		Conn: dbclient.Connection{
			Driver:   driver,
			Host:     getenv(EnvDBHost, "localhost"),
			Port:     getenvInt(EnvDBPort, 0),
			Database: getenv(EnvDB, defaultDB),
			Username: os.Getenv(EnvDBUser),
		},
		Password: os.Getenv(EnvDBPass),
	}
}

// MongoFromEnv reads MONGODB_ATLAS_URL, MONGODB_ATLAS_USER and
// MONGODB_ATLAS_PWD.
func MongoFromEnv(database string) Database {
	return Database{
		Conn: dbclient.Connection{
			Driver:   dbclient.DriverMongoDB,
			Host:     getenv(EnvMongoURL, "mongodb://localhost:27017"),
			Database: database,
			Username: os.Getenv(EnvMongoUser),
		},
		Password: os.Getenv(EnvMongoPwd),
	}
}

// DatabaseFromEnv picks the reader for driver. Postgres shares the MySQL
// variables; for sqlite, DB names the database file.
func DatabaseFromEnv(driver dbclient.Driver, defaultDB string) (Database, error) {
	switch driver {
	case dbclient.DriverMySQL, dbclient.DriverPostgres:
		return sqlFromEnv(driver, defaultDB), nil
	case dbclient.DriverSQLite:
		return Database{Conn: dbclient.Connection{
			Driver: dbclient.DriverSQLite,
			Host:   getenv(EnvDB, defaultDB),
		}}, nil
	case dbclient.DriverMongoDB:
		return MongoFromEnv(getenv(EnvDB, defaultDB)), nil
	default:
		return Database{}, fmt.Errorf("unsupported driver: %s", driver)
	}
}
