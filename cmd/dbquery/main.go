// Command dbquery runs one query against a database configured from the
// environment and prints the result.
//
//	dbquery [-driver mysql] [-db media] [-fetch 50] [-limit 0] [-json] <query>
//	dbquery -driver sqlite -count <table>
//
// SQL drivers take plain SQL. MongoDB takes a JSON query document, e.g.
//
//	{"collection":"items","operation":"find","filter":{"name":"apple"}}
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"dataeng/internal/config"
	"dataeng/internal/dbclient"
	"dataeng/internal/etl"
	"dataeng/internal/logging"
)

func main() {
	logger, cleanup := logging.Setup("dbquery")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr, logger)
	stop()
	cleanup()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, logger *slog.Logger) int {
	name := "dbquery"
	if len(args) > 0 {
		name, args = args[0], args[1:]
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	driver := fs.String("driver", string(dbclient.DriverMySQL), "mysql, postgres, sqlite or mongodb")
	dbName := fs.String("db", "media", "database used when DB is unset")
	fetch := fs.Int("fetch", 50, "rows per page")
	limit := fs.Int("limit", 0, "stop after this many rows (0 prints all)")
	count := fs.String("count", "", "print the row count of this table or collection")
	asJSON := fs.Bool("json", false, "print rows as a JSON array of objects")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [flags] <query>\n", name)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() == 0 && *count == "" {
		fs.Usage()
		return 1
	}

	db, err := config.DatabaseFromEnv(dbclient.Driver(*driver), *dbName)
	if err != nil {
		logger.Error("configure database", "error", err)
		return 1
	}
	conn, err := dbclient.NewConnector(&db.Conn, db.Password, logger)
	if err != nil {
		logger.Error("open database", "driver", *driver, "error", err)
		return 1
	}
	defer conn.Close()

	if err := conn.TestConnection(ctx); err != nil {
		logger.Error("connect", "driver", *driver, "host", db.Conn.Host, "error", err)
		return 1
	}

	if *count != "" {
		n, err := conn.Count(ctx, *count)
		if err != nil {
			logger.Error("count", "table", *count, "error", err)
			return 1
		}
		fmt.Fprintf(stdout, "%d\n", n)
	}
	if fs.NArg() == 0 {
		return 0
	}

	out := newPrinter(stdout, *asJSON)
	if err := query(ctx, conn, fs.Arg(0), *fetch, *limit, out); err != nil {
		logger.Error("query", "error", err)
		return 1
	}
	if err := out.flush(); err != nil {
		logger.Error("write output", "error", err)
		return 1
	}
	return 0
}

// query pages through the cursor until it is drained or limit rows have
// been printed.
func query(ctx context.Context, conn dbclient.Connector, q string, fetch, limit int, out *printer) error {
	page, err := conn.Execute(ctx, q, fetch)
	if err != nil {
		return err
	}
	if page.IsWrite {
		out.affected(page.AffectedRows)
		return nil
	}

	printed := 0
	for {
		rows := page.Rows
		if limit > 0 && printed+len(rows) > limit {
			rows = rows[:limit-printed]
		}
		out.rows(page.Columns, rows)
		printed += len(rows)

		if !page.HasMore || (limit > 0 && printed >= limit) {
			return nil
		}
		if page, err = conn.FetchMore(ctx, fetch); err != nil {
			return err
		}
	}
}

// printer writes result rows as an aligned table or as JSON objects.
type printer struct {
	w       io.Writer
	tw      *tabwriter.Writer
	asJSON  bool
	header  bool
	objects []orderedRow
	wrote   bool
}

func newPrinter(w io.Writer, asJSON bool) *printer {
	return &printer{w: w, tw: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0), asJSON: asJSON}
}

func (p *printer) affected(n int) {
	fmt.Fprintf(p.w, "%d rows affected\n", n)
}

func (p *printer) rows(columns []string, rows [][]any) {
	p.wrote = true
	if p.asJSON {
		for _, r := range rows {
			p.objects = append(p.objects, orderedRow{columns: columns, values: r})
		}
		return
	}
	if !p.header {
		fmt.Fprintln(p.tw, strings.Join(columns, "\t"))
		p.header = true
	}
	for _, r := range rows {
		cells := make([]string, len(r))
		for i, v := range r {
			cells[i] = formatCell(v)
		}
		fmt.Fprintln(p.tw, strings.Join(cells, "\t"))
	}
}

func (p *printer) flush() error {
	if !p.wrote {
		return nil
	}
	if !p.asJSON {
		return p.tw.Flush()
	}
	if p.objects == nil {
		p.objects = []orderedRow{}
	}
	b, err := json.MarshalIndent(p.objects, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(p.w, "%s\n", b)
	return err
}

func formatCell(v any) string {
	switch x := v.(type) {
	case bson.ObjectID:
		return x.Hex()
	case bson.DateTime:
		return x.Time().UTC().Format(etl.TimestampLayout)
	case bson.D:
		b, err := bson.MarshalExtJSON(x, false, false)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return etl.FormatValue(v)
	}
}

// orderedRow marshals as a JSON object whose keys keep column order.
type orderedRow struct {
	columns []string
	values  []any
}

func (r orderedRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(jsonValue(r.values[i]))
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func jsonValue(v any) any {
	switch x := v.(type) {
	case bson.ObjectID:
		return x.Hex()
	case bson.DateTime:
		return x.Time().UTC().Format(time.RFC3339)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case bson.D:
		b, err := bson.MarshalExtJSON(x, false, false)
		if err != nil {
			return fmt.Sprint(x)
		}
		return json.RawMessage(b)
	default:
		return v
	}
}
