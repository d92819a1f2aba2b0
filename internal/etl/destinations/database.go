// Package destinations holds etl.Destination implementations backed by
// external databases.
package destinations

import (
	"context"
	"errors"

	"dataeng/internal/dbclient"
	"dataeng/internal/etl"
)

// SQLTable appends records to a SQL table, creating it on first write.
type SQLTable struct {
	Conn  dbclient.Connector
	Table string
}

func (d *SQLTable) Write(ctx context.Context, table *etl.Table) (int, error) {
	return insert(ctx, d.Conn, d.Table, table)
}

// MongoCollection appends one document per record to a collection.
type MongoCollection struct {
	Conn       dbclient.Connector
	Collection string
}

func (d *MongoCollection) Write(ctx context.Context, table *etl.Table) (int, error) {
	return insert(ctx, d.Conn, d.Collection, table)
}

func insert(ctx context.Context, conn dbclient.Connector, target string, table *etl.Table) (int, error) {
	if conn == nil || target == "" {
		return 0, etl.LoadError(etl.StorageWriteError, "insert", target, errors.New("destination is not configured"))
	}
	if table == nil || table.Schema == nil {
		return 0, etl.LoadError(etl.FieldResolutionError, "insert", target, errors.New("no table to load"))
	}

	columns := make([]dbclient.ColumnInfo, len(table.Schema.Fields))
	for i, f := range table.Schema.Fields {
		columns[i] = dbclient.ColumnInfo{Name: f.Name, Type: f.Type}
	}
	rows := make([][]any, len(table.Records))
	for i, r := range table.Records {
		rows[i] = r.Values(table.Schema)
	}

	n, err := conn.Insert(ctx, target, columns, rows)
	if err != nil {
		return 0, etl.LoadError(etl.StorageWriteError, "insert", target, err)
	}
	return n, nil
}
