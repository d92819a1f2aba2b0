package etl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/renameio/v2"
)

// DefaultTimeout bounds a single Extract fetch.
const DefaultTimeout = 30 * time.Second

// Extractor fetches a JSON document over HTTP.
// The zero value is ready to use.
type Extractor struct {
	Client  *http.Client  // defaults to a client with Timeout
	Timeout time.Duration // defaults to DefaultTimeout
	Logger  *slog.Logger
}

func (x *Extractor) client() *http.Client {
	if x.Client != nil {
		return x.Client
	}
	timeout := x.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (x *Extractor) logger() *slog.Logger {
	if x.Logger != nil {
		return x.Logger
	}
	return slog.Default()
}

// Fetch performs one GET against url and returns the body re-indented as
// two-space JSON. Object key order and number text are kept as received.
func (x *Extractor) Fetch(ctx context.Context, url string) (RawPayload, error) {
	if url == "" {
		return nil, stageErr(StageExtract, NetworkError, "build request", url, errors.New("url is required"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, stageErr(StageExtract, NetworkError, "build request", url, err)
	}
	req.Header.Set("Accept", "application/json")

	x.logger().Info("getting data", "url", url)

	resp, err := x.client().Do(req)
	if err != nil {
		return nil, stageErr(StageExtract, NetworkError, "fetch", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		msg := string(bytes.TrimSpace(snippet))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		e := stageErr(StageExtract, HTTPStatusError, "fetch", url, errors.New(msg))
		e.StatusCode = resp.StatusCode
		return nil, e
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, stageErr(StageExtract, NetworkError, "read body", url, err)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(body), "", "  "); err != nil {
		return nil, stageErr(StageExtract, PayloadParseError, "parse body", url, err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Extract fetches url and replaces dest with the payload.
// dest is written atomically; on any failure it is left untouched.
func (x *Extractor) Extract(ctx context.Context, url, dest string) error {
	payload, err := x.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(dest, payload, 0o644); err != nil {
		return stageErr(StageExtract, StorageWriteError, "write raw", dest, err)
	}
	x.logger().Info("extracted raw data", "path", dest, "bytes", len(payload))
	return nil
}
