package dbclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// mongoConnector implements Connector for MongoDB.
type mongoConnector struct {
	client *mongo.Client
	dbName string
	logger *slog.Logger

	mu      sync.Mutex
	cursor  *mongo.Cursor
	fetched int
}

// mongoQuery is the JSON document accepted by Execute.
type mongoQuery struct {
	Collection string           `json:"collection"`
	Operation  string           `json:"operation,omitempty"` // find (default), insertOne, insertMany, updateMany, deleteMany, count
	Filter     map[string]any   `json:"filter,omitempty"`
	Projection map[string]any   `json:"projection,omitempty"`
	Sort       map[string]any   `json:"sort,omitempty"`
	Document   map[string]any   `json:"document,omitempty"`  // insertOne
	Documents  []map[string]any `json:"documents,omitempty"` // insertMany
	Update     map[string]any   `json:"update,omitempty"`    // updateMany
}

// mongoURI builds the connection URI and picks the database name.
// A Host that is already a mongodb:// or mongodb+srv:// URI is used as is,
// with <password> placeholders filled in.
func mongoURI(conn *Connection, password string) (uri, dbName string) {
	if strings.HasPrefix(conn.Host, "mongodb+srv://") || strings.HasPrefix(conn.Host, "mongodb://") {
		uri = conn.Host
		if password != "" {
			uri = strings.ReplaceAll(uri, "<password>", url.QueryEscape(password))
			uri = strings.ReplaceAll(uri, "<db_password>", url.QueryEscape(password))
		}
		if conn.Username != "" && !strings.Contains(uri, "@") {
			scheme, rest, _ := strings.Cut(uri, "://")
			uri = scheme + "://" + url.UserPassword(conn.Username, password).String() + "@" + rest
		}
	} else {
		port := conn.Port
		if port == 0 {
			port = 27017
		}
		u := url.URL{Scheme: "mongodb", Host: joinHostPort(conn.Host, port)}
		if conn.Username != "" {
			u.User = url.UserPassword(conn.Username, password)
		}
		if len(conn.Extra) > 0 {
			q := url.Values{}
			for k, v := range conn.Extra {
				q.Set(k, v)
			}
			u.RawQuery = q.Encode()
		}
		uri = u.String()
	}

	dbName = conn.Database
	if dbName == "" {
		dbName = databaseFromURI(uri)
	}
	if dbName == "" {
		dbName = "test"
	}
	return uri, dbName
}

// databaseFromURI extracts the path segment of user:pass@host/DB?params.
func databaseFromURI(uri string) string {
	_, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return ""
	}
	if i := strings.LastIndex(rest, "@"); i != -1 {
		rest = rest[i+1:]
	}
	_, path, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	path, _, _ = strings.Cut(path, "?")
	return path
}

func newMongoConnector(conn *Connection, password string, logger *slog.Logger) (*mongoConnector, error) {
	uri, dbName := mongoURI(conn, password)

	logURI := uri
	if password != "" {
		logURI = strings.ReplaceAll(logURI, url.QueryEscape(password), "***")
		logURI = strings.ReplaceAll(logURI, password, "***")
	}
	logger = logger.With("component", "mongo")
	logger.Info("connecting", "uri", logURI, "database", dbName)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &mongoConnector{client: client, dbName: dbName, logger: logger}, nil
}

// unmarshalEJSON converts MongoDB Extended JSON values ($oid, $date,
// $numberLong) in a decoded JSON field to their BSON types.
func unmarshalEJSON(field map[string]any) (map[string]any, error) {
	if field == nil {
		return nil, nil
	}
	raw, err := json.Marshal(field)
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, fmt.Errorf("extended json: %w", err)
	}
	result := make(map[string]any, len(doc))
	for _, elem := range doc {
		result[elem.Key] = elem.Value
	}
	return result, nil
}

func parseMongoQuery(query string) (mongoQuery, error) {
	var mq mongoQuery
	if err := json.Unmarshal([]byte(query), &mq); err != nil {
		return mq, fmt.Errorf("invalid query JSON: %w", err)
	}
	if mq.Collection == "" {
		return mq, fmt.Errorf("query must specify 'collection'")
	}
	if mq.Operation == "" {
		mq.Operation = "find"
	}
	for _, f := range []*map[string]any{&mq.Filter, &mq.Document, &mq.Update, &mq.Projection, &mq.Sort} {
		v, err := unmarshalEJSON(*f)
		if err != nil {
			return mq, err
		}
		*f = v
	}
	for i, d := range mq.Documents {
		v, err := unmarshalEJSON(d)
		if err != nil {
			return mq, fmt.Errorf("document %d: %w", i, err)
		}
		mq.Documents[i] = v
	}
	if mq.Filter == nil {
		mq.Filter = map[string]any{}
	}
	return mq, nil
}

func (m *mongoConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *mongoConnector) Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeCursorLocked(ctx)

	if fetchSize <= 0 {
		fetchSize = defaultFetchSize
	}

	mq, err := parseMongoQuery(query)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("parsed query", "collection", mq.Collection, "operation", mq.Operation)

	coll := m.client.Database(m.dbName).Collection(mq.Collection)

	switch mq.Operation {
	case "find":
		return m.execFind(ctx, coll, mq, fetchSize)
	case "insertOne":
		if mq.Document == nil {
			return nil, fmt.Errorf("insertOne requires 'document'")
		}
		if _, err := coll.InsertOne(ctx, mq.Document); err != nil {
			return nil, fmt.Errorf("insertOne: %w", err)
		}
		return &QueryPage{IsWrite: true, AffectedRows: 1}, nil
	case "insertMany":
		if len(mq.Documents) == 0 {
			return nil, fmt.Errorf("insertMany requires 'documents'")
		}
		res, err := coll.InsertMany(ctx, mq.Documents)
		if err != nil {
			return nil, fmt.Errorf("insertMany: %w", err)
		}
		return &QueryPage{IsWrite: true, AffectedRows: len(res.InsertedIDs)}, nil
	case "updateMany":
		if mq.Update == nil {
			return nil, fmt.Errorf("updateMany requires 'update'")
		}
		res, err := coll.UpdateMany(ctx, mq.Filter, mq.Update)
		if err != nil {
			return nil, fmt.Errorf("updateMany: %w", err)
		}
		return &QueryPage{IsWrite: true, AffectedRows: int(res.ModifiedCount)}, nil
	case "deleteMany":
		res, err := coll.DeleteMany(ctx, mq.Filter)
		if err != nil {
			return nil, fmt.Errorf("deleteMany: %w", err)
		}
		return &QueryPage{IsWrite: true, AffectedRows: int(res.DeletedCount)}, nil
	case "count":
		n, err := coll.CountDocuments(ctx, mq.Filter)
		if err != nil {
			return nil, fmt.Errorf("count: %w", err)
		}
		return &QueryPage{Columns: []string{"count"}, Rows: [][]any{{n}}, TotalFetched: 1}, nil
	default:
		return nil, fmt.Errorf("unsupported operation: %s", mq.Operation)
	}
}

func (m *mongoConnector) execFind(ctx context.Context, coll *mongo.Collection, mq mongoQuery, fetchSize int) (*QueryPage, error) {
	opts := options.Find().SetBatchSize(int32(fetchSize))
	if mq.Projection != nil {
		opts.SetProjection(mq.Projection)
	}
	if mq.Sort != nil {
		opts.SetSort(mq.Sort)
	}

	cursor, err := coll.Find(ctx, mq.Filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	m.cursor = cursor
	m.fetched = 0
	return m.fetchBatchLocked(ctx, fetchSize)
}

func (m *mongoConnector) FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor == nil {
		return nil, fmt.Errorf("no active cursor: execute a query first")
	}
	if fetchSize <= 0 {
		fetchSize = defaultFetchSize
	}
	return m.fetchBatchLocked(ctx, fetchSize)
}

func (m *mongoConnector) fetchBatchLocked(ctx context.Context, fetchSize int) (*QueryPage, error) {
	var docs []bson.D
	for len(docs) < fetchSize && m.cursor.Next(ctx) {
		var doc bson.D
		if err := m.cursor.Decode(&doc); err != nil {
			m.closeCursorLocked(ctx)
			return nil, fmt.Errorf("decode: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := m.cursor.Err(); err != nil {
		m.closeCursorLocked(ctx)
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	m.fetched += len(docs)

	columns, rows := documentRows(docs)

	hasMore := len(docs) == fetchSize
	if !hasMore {
		m.closeCursorLocked(ctx)
	}
	return &QueryPage{
		Columns:      columns,
		Rows:         rows,
		TotalFetched: m.fetched,
		HasMore:      hasMore,
	}, nil
}

// documentRows lays documents out as a table: _id first, then the other
// keys alphabetically. Absent keys are nil.
func documentRows(docs []bson.D) ([]string, [][]any) {
	colSet := map[string]bool{}
	var columns []string
	for _, doc := range docs {
		for _, elem := range doc {
			if !colSet[elem.Key] {
				colSet[elem.Key] = true
				columns = append(columns, elem.Key)
			}
		}
	}
	sort.SliceStable(columns, func(i, j int) bool {
		if columns[i] == "_id" {
			return columns[j] != "_id"
		}
		if columns[j] == "_id" {
			return false
		}
		return columns[i] < columns[j]
	})

	rows := make([][]any, 0, len(docs))
	for _, doc := range docs {
		row := make([]any, len(columns))
		docMap := make(map[string]any, len(doc))
		for _, elem := range doc {
			docMap[elem.Key] = elem.Value
		}
		for j, col := range columns {
			if v, ok := docMap[col]; ok {
				row[j] = v
			}
		}
		rows = append(rows, row)
	}
	return columns, rows
}

// Insert writes one document per row. Collections are created on first
// insert, so columns only name the fields.
func (m *mongoConnector) Insert(ctx context.Context, collection string, columns []ColumnInfo, rows [][]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	docs := make([]bson.D, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
		doc := make(bson.D, len(columns))
		for j, col := range columns {
			doc[j] = bson.E{Key: col.Name, Value: row[j]}
		}
		docs[i] = doc
	}

	res, err := m.client.Database(m.dbName).Collection(collection).InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("insertMany %s: %w", collection, err)
	}
	m.logger.Debug("inserted documents", "collection", collection, "count", len(res.InsertedIDs))
	return len(res.InsertedIDs), nil
}

func (m *mongoConnector) Count(ctx context.Context, collection string) (int64, error) {
	n, err := m.client.Database(m.dbName).Collection(collection).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func (m *mongoConnector) Close() error {
	m.mu.Lock()
	m.closeCursorLocked(context.Background())
	m.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *mongoConnector) closeCursorLocked(ctx context.Context) {
	if m.cursor != nil {
		m.cursor.Close(ctx)
		m.cursor = nil
	}
}
