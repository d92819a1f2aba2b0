package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"dataeng/internal/dbclient"
	"dataeng/internal/etl"
)

// Destination types a job can load into.
const (
	DestCSV   = "csv"
	DestTSV   = "tsv"
	DestSQL   = "sql"
	DestMongo = "mongo"
)

// Jobs is the scheduler configuration file.
type Jobs struct {
	// RunLog is the sqlite file recording job runs. Relative paths are
	// resolved against the jobs file's directory.
	RunLog      string                     `yaml:"runlog"`
	Connections map[string]ConnectionConfig `yaml:"connections"`
	Jobs        []Job                      `yaml:"jobs"`
}

// ConnectionConfig names an external database. The password is read
// from the environment variable PasswordEnv so it never sits in the file.
type ConnectionConfig struct {
	dbclient.Connection `yaml:",inline"`
	PasswordEnv         string `yaml:"passwordEnv"`
}

// Password resolves the connection password from the environment.
func (c ConnectionConfig) Password() string {
	if c.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.PasswordEnv)
}

// Job is one pipeline plus the trigger that runs it.
type Job struct {
	Name        string                `yaml:"name"`
	URL         string                `yaml:"url"`
	Raw         string                `yaml:"raw"` // intermediate payload file; empty transforms in memory
	RecordsKey  string                `yaml:"recordsKey"`
	StripPrefix string                `yaml:"stripPrefix"`
	Fields      []string              `yaml:"fields"`
	Transforms  []etl.TransformConfig `yaml:"transforms"`
	Destination DestinationConfig     `yaml:"destination"`
	Schedule    string                `yaml:"schedule"` // cron expression
	Watch       string                `yaml:"watch"`    // file whose changes trigger a run
	Timeout     time.Duration         `yaml:"timeout"`
}

// DestinationConfig selects where a job loads its table.
type DestinationConfig struct {
	Type        string `yaml:"type"`
	Path        string `yaml:"path"`       // csv, tsv
	Connection  string `yaml:"connection"` // sql, mongo: key into Jobs.Connections
	Table       string `yaml:"table"`      // sql
	Collection  string `yaml:"collection"` // mongo
	RejectEmpty bool   `yaml:"rejectEmpty"`
}

// LoadJobs reads and validates a jobs file. ${VAR} references are
// expanded from the environment before parsing.
func LoadJobs(path string) (*Jobs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}
	jobs, err := ParseJobs([]byte(os.ExpandEnv(string(data))))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Dir(path)
	jobs.RunLog = resolve(base, jobs.RunLog)
	for i := range jobs.Jobs {
		j := &jobs.Jobs[i]
		j.Raw = resolve(base, j.Raw)
		j.Watch = resolve(base, j.Watch)
		j.Destination.Path = resolve(base, j.Destination.Path)
	}
	return jobs, nil
}

// ParseJobs decodes and validates a jobs document.
func ParseJobs(data []byte) (*Jobs, error) {
	var jobs Jobs
	if err := yaml.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parse jobs: %w", err)
	}
	if jobs.RunLog == "" {
		jobs.RunLog = "runlog.db"
	}
	if err := jobs.Validate(); err != nil {
		return nil, err
	}
	return &jobs, nil
}

// Validate checks every job and returns all problems at once.
func (c *Jobs) Validate() error {
	var errs []error
	if len(c.Jobs) == 0 {
		errs = append(errs, errors.New("no jobs defined"))
	}
	for name, conn := range c.Connections {
		if err := conn.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("connection %q: %w", name, err))
		}
	}
	seen := make(map[string]bool)
	for i, j := range c.Jobs {
		if j.Name == "" {
			errs = append(errs, fmt.Errorf("job %d: name is required", i))
			continue
		}
		if seen[j.Name] {
			errs = append(errs, fmt.Errorf("job %q: duplicate name", j.Name))
		}
		seen[j.Name] = true
		if err := c.validateJob(j); err != nil {
			errs = append(errs, fmt.Errorf("job %q: %w", j.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Jobs) validateJob(j Job) error {
	if j.URL == "" {
		return errors.New("url is required")
	}
	if j.Schedule != "" {
		if _, err := cron.ParseStandard(j.Schedule); err != nil {
			return fmt.Errorf("schedule: %w", err)
		}
	}
	if _, err := etl.BuildTransformers(j.Transforms); err != nil {
		return err
	}

	d := j.Destination
	switch strings.ToLower(d.Type) {
	case DestCSV, DestTSV, "":
		if d.Path == "" {
			return errors.New("destination path is required")
		}
	case DestSQL, DestMongo:
		conn, ok := c.Connections[d.Connection]
		if !ok {
			return fmt.Errorf("unknown connection %q", d.Connection)
		}
		isMongo := conn.Driver == dbclient.DriverMongoDB
		if strings.EqualFold(d.Type, DestMongo) != isMongo {
			return fmt.Errorf("connection %q uses driver %s, not usable for %s", d.Connection, conn.Driver, d.Type)
		}
		if isMongo && d.Collection == "" {
			return errors.New("destination collection is required")
		}
		if !isMongo && d.Table == "" {
			return errors.New("destination table is required")
		}
	default:
		return fmt.Errorf("unknown destination type %q", d.Type)
	}
	return nil
}

// Job returns the named job.
func (c *Jobs) Job(name string) (Job, bool) {
	for _, j := range c.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return Job{}, false
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
