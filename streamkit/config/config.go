// Package config carries the runtime configuration for streamkit.
// Configuration is an explicit value handed to the database factory and
// the engines; there is no package-global state.
package config

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/spf13/viper"
)

// Error is reported for malformed configuration: missing backend,
// password without user, conflicting option variants, bad URL.
type Error struct {
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("configuration: %s", e.Msg)
}

func Errorf(format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

type Backend string

const (
	SQLite      Backend = "sqlite"
	Postgres    Backend = "postgres"
	Timescale   Backend = "timescale"
	TimescaleDB Backend = "timescaledb"
)

// Scheme resolves the URL scheme: the timescale backends are postgres.
func (b Backend) Scheme() string {
	if b.IsTimescale() {
		return string(Postgres)
	}
	return string(b)
}

func (b Backend) IsTimescale() bool {
	return b == Timescale || b == TimescaleDB
}

func (b Backend) known() bool {
	switch b {
	case SQLite, Postgres, Timescale, TimescaleDB:
		return true
	}
	return false
}

type Database struct {
	Backend     Backend
	User        string
	Password    string
	Host        string
	Port        int
	Database    string
	Schema      string
	ConnectArgs map[string]string
}

type Logging struct {
	Level   string
	Format  string
	Datefmt string
}

type Config struct {
	Database Database
	Logging  Logging
}

// Default mirrors the original defaults: an in-memory sqlite store and
// warning-level logging.
func Default() Config {
	return Config{
		Database: Database{Backend: SQLite, Database: ":memory:"},
		Logging:  Logging{Level: "warning"},
	}
}

func (d Database) Validate() error {
	if d.Backend == "" {
		return Errorf("database.backend is required")
	}
	if !d.Backend.known() {
		return Errorf("unknown database.backend %q", d.Backend)
	}
	if d.Password != "" && d.User == "" {
		return Errorf("`password` given but not `user`")
	}
	return nil
}

// URL constructs backend://[user[:password]@][host[:port]]/database[?params]
// with the connect args url-encoded at the end.
func (d Database) URL() (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}

	s := d.Backend.Scheme() + "://"
	if d.User != "" && d.Password != "" {
		s += d.User + ":" + d.Password + "@"
	} else if d.User != "" {
		s += d.User + "@"
	}

	if d.Host != "" && d.Port != 0 {
		s += d.Host + ":" + strconv.Itoa(d.Port)
	} else if d.Host != "" {
		s += d.Host
	} else if d.Port != 0 {
		s += "localhost:" + strconv.Itoa(d.Port)
	}

	if d.Database != "" {
		s += "/" + d.Database
	}

	if len(d.ConnectArgs) > 0 {
		values := url.Values{}
		for k, v := range d.ConnectArgs {
			values.Set(k, v)
		}
		s += "?" + values.Encode()
	}

	return s, nil
}

// Load reads a configuration file (TOML or YAML, by extension) and
// applies `_env`/`_eval` expansion.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, Errorf("cannot read %s: %v", path, err)
	}
	return FromMap(v.AllSettings())
}

// FromMap builds a Config from a nested mapping, e.g. viper settings or
// a literal map in tests. Unrecognized options are rejected.
func FromMap(settings map[string]any) (Config, error) {
	cfg := Default()

	dbsect, err := section(settings, "database")
	if err != nil {
		return Config{}, err
	}
	if dbsect != nil {
		db, err := databaseFromMap(dbsect)
		if err != nil {
			return Config{}, err
		}
		cfg.Database = db
	}

	logsect, err := section(settings, "logging")
	if err != nil {
		return Config{}, err
	}
	if logsect != nil {
		logging, err := loggingFromMap(logsect)
		if err != nil {
			return Config{}, err
		}
		if logging.Level == "" {
			logging.Level = cfg.Logging.Level
		}
		cfg.Logging = logging
	}

	return cfg, cfg.Database.Validate()
}

func databaseFromMap(sect map[string]any) (Database, error) {
	db := Database{}
	options, err := expand(sect, "connect_args")
	if err != nil {
		return db, err
	}
	for name, value := range options {
		switch name {
		case "backend":
			db.Backend = Backend(value)
		case "user":
			db.User = value
		case "password":
			db.Password = value
		case "host":
			db.Host = value
		case "port":
			port, err := strconv.Atoi(value)
			if err != nil {
				return db, Errorf("database.port: %q is not a number", value)
			}
			db.Port = port
		case "database":
			db.Database = value
		case "schema":
			db.Schema = value
		default:
			return db, Errorf("unrecognized option database.%s", name)
		}
	}

	if raw, ok := sect["connect_args"]; ok {
		args, ok := raw.(map[string]any)
		if !ok {
			return db, Errorf("database.connect_args must be a mapping")
		}
		db.ConnectArgs = make(map[string]string, len(args))
		for k, v := range args {
			db.ConnectArgs[k] = fmt.Sprint(v)
		}
	}

	return db, nil
}

func loggingFromMap(sect map[string]any) (Logging, error) {
	logging := Logging{}
	options, err := expand(sect)
	if err != nil {
		return logging, err
	}
	for name, value := range options {
		switch name {
		case "level":
			logging.Level = value
		case "format":
			logging.Format = value
		case "datefmt":
			logging.Datefmt = value
		default:
			return logging, Errorf("unrecognized option logging.%s", name)
		}
	}
	return logging, nil
}

// section fetches a nested mapping by name; nil when absent.
func section(settings map[string]any, name string) (map[string]any, error) {
	raw, ok := settings[name]
	if !ok {
		return nil, nil
	}
	sect, ok := raw.(map[string]any)
	if !ok {
		return nil, Errorf("%s must be a section", name)
	}
	return sect, nil
}

// expand resolves every scalar option in a section, substituting values
// for `_env` (environment variable) and `_eval` (command output)
// variants. Exactly one variant of each logical option may be present.
func expand(sect map[string]any, skip ...string) (map[string]string, error) {
	skipped := make(map[string]bool, len(skip))
	for _, name := range skip {
		skipped[name] = true
	}

	keys := make([]string, 0, len(sect))
	for key := range sect {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	options := make(map[string]string)
	for _, key := range keys {
		name := logicalName(key)
		if skipped[name] {
			continue
		}
		if _, seen := options[name]; seen {
			return nil, Errorf("more than one variant of %q", name)
		}
		value, err := expandValue(key, fmt.Sprint(sect[key]))
		if err != nil {
			return nil, err
		}
		options[name] = value
	}
	return options, nil
}
