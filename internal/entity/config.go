// Package entity resolves the configured dispatch sources, the directories
// each of them writes to and the bookkeeping kept between runs.
package entity

import (
	"fmt"
	"loggingturtle/internal/components/chrono"
	"loggingturtle/internal/normalize"
	"loggingturtle/internal/table"
	"loggingturtle/lib/configutil"
	configlibsql "loggingturtle/lib/configutil/libsql"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const ConfigName = "turtles.json5"

// DefaultConfigDir is where the config is looked for when no directory is given.
const DefaultConfigDir = "~/loggingTurtle"

type FetchConfig struct {
	TimeoutSeconds    int     `json:"timeout_seconds"`
	Attempts          int     `json:"attempts"`
	RetryDelaySeconds int     `json:"retry_delay_seconds"`
	UserAgent         string  `json:"user_agent"`
	CloudflareBypass  bool    `json:"cloudflare_bypass"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

func (c FetchConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c FetchConfig) RetryDelay() time.Duration {
	if c.RetryDelaySeconds < 0 {
		return 0
	}
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

type NotifyConfig struct {
	Server   string   `json:"server"`
	Port     int      `json:"port"`
	Address  string   `json:"address"`
	Password string   `json:"password"`
	To       []string `json:"to"`
}

func (c NotifyConfig) Enabled() bool {
	return c.Server != "" && c.Address != "" && len(c.To) > 0
}

type EntityConfig struct {
	// Name names the directories and files of the entity, it defaults to the entity's key.
	Name string `json:"name"`
	URL  string `json:"url"`
	// TablePosition is a pointer so an explicit 0 is not mistaken for "unset".
	TablePosition  *int                `json:"table_position"`
	TimeColumn     string              `json:"time_column"`
	IDColumn       string              `json:"id_column"`
	AddressColumn  string              `json:"address_column"`
	TimeLayout     string              `json:"time_layout"`
	BlockDelimiter string              `json:"block_delimiter"`
	Locality       *string             `json:"locality"`
	Timezone       string              `json:"timezone"`
	Database       configlibsql.Struct `json:"database"`
	// DebugDatabase is used instead of Database by debug runs of an entity
	// whose Database is remote.
	DebugDatabase *configlibsql.Struct `json:"debug_database"`
}

type Config struct {
	Home     string                  `json:"home"`
	HtmlRoot string                  `json:"html_root"`
	Schedule string                  `json:"schedule"`
	Fetch    FetchConfig             `json:"fetch"`
	Notify   NotifyConfig            `json:"notify"`
	Entities map[string]EntityConfig `json:"entities"`
}

// Registry is a loaded config along with the file it came from.
type Registry struct {
	Config Config
	Path   string
}

// Load reads the config from the first of dirs that has one, later
// directories are only tried when earlier ones have no config.
func Load(dirs ...string) (Registry, error) {
	if len(dirs) == 0 {
		dirs = []string{DefaultConfigDir}
	}
	config, path, err := configutil.ReadFirst[Config](dirs, ConfigName)
	if err != nil {
		return Registry{}, fmt.Errorf("read %s from %v: %w", ConfigName, dirs, err)
	}
	if config.Home == "" {
		config.Home = DefaultConfigDir
	}
	if config.HtmlRoot == "" {
		config.HtmlRoot = "~/public_html"
	}
	return Registry{Config: config, Path: path}, nil
}

// Names returns the keys of every configured entity, sorted.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r.Config.Entities))
	for name := range r.Config.Entities {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Entity is a fully resolved entity, ready to be run.
type Entity struct {
	Key           string
	Name          string
	URL           string
	TablePosition int
	Normalize     normalize.Options
	Database      configlibsql.Struct
	Clock         chrono.StandardTime
	Paths         Paths
	Debug         bool
}

// Resolve fills the defaults of an entity and computes its directories,
// debug runs live in a separate `Debug` tree.
func (r Registry) Resolve(key string, debug bool) (Entity, error) {
	config, ok := r.Config.Entities[key]
	if !ok {
		return Entity{}, fmt.Errorf("[%s] is not the name of an entity in %s", key, r.Path)
	}
	if strings.TrimSpace(config.URL) == "" {
		return Entity{}, fmt.Errorf("entity %s has no url", key)
	}

	name := config.Name
	if name == "" {
		name = key
	}
	position := table.DefaultPosition
	if config.TablePosition != nil {
		position = *config.TablePosition
	}
	clock, err := chrono.LoadStandardTime(config.Timezone)
	if err != nil {
		return Entity{}, fmt.Errorf("entity %s: %w", key, err)
	}

	home, err := configutil.ExpandHome(r.Config.Home)
	if err != nil {
		return Entity{}, err
	}
	htmlRoot, err := configutil.ExpandHome(r.Config.HtmlRoot)
	if err != nil {
		return Entity{}, err
	}
	paths := NewPaths(home, htmlRoot, name, debug)

	opts := normalize.DefaultOptions()
	override(&opts.TimeColumn, config.TimeColumn)
	override(&opts.IDColumn, config.IDColumn)
	override(&opts.AddressColumn, config.AddressColumn)
	override(&opts.TimeLayout, config.TimeLayout)
	override(&opts.BlockDelimiter, config.BlockDelimiter)
	if config.Locality != nil {
		opts.Locality = *config.Locality
	}

	database, err := resolveDatabase(config, paths, name, debug)
	if err != nil {
		return Entity{}, fmt.Errorf("entity %s: %w", key, err)
	}

	return Entity{
		Key:           key,
		Name:          name,
		URL:           config.URL,
		TablePosition: position,
		Normalize:     opts,
		Database:      database,
		Clock:         clock,
		Paths:         paths,
		Debug:         debug,
	}, nil
}

// resolveDatabase keeps debug runs out of the production store: local
// files are moved under the Debug tree and remote databases need an
// explicit debug_database.
func resolveDatabase(config EntityConfig, paths Paths, name string, debug bool) (configlibsql.Struct, error) {
	database := config.Database
	if debug && config.DebugDatabase != nil {
		database = *config.DebugDatabase
	}

	switch {
	case database.Url != "":
		if debug && config.DebugDatabase == nil {
			return configlibsql.Struct{}, fmt.Errorf(
				"database %s is remote, set debug_database to run with --debug",
				database.Url,
			)
		}
		return database, nil
	case database.File == "":
		database.File = filepath.Join(paths.DataBase, name+".db")
		return database, nil
	case database.File == ":memory:":
		return database, nil
	}

	file, err := configutil.ExpandHome(database.File)
	if err != nil {
		return configlibsql.Struct{}, err
	}
	if debug && config.DebugDatabase == nil {
		file = filepath.Join(paths.DataBase, filepath.Base(file))
	}
	database.File = file
	return database, nil
}

func override(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
