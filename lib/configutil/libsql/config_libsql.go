package configlibsql

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Struct configures where a database lives, either a local sqlite file or,
// when Url is set, a remote libsql server.
type Struct struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

// OpenDB opens the database, creating the local file and its directory if
// they do not exist yet.
func (config Struct) OpenDB() (*sql.DB, error) {
	if config.Url != "" {
		return config.openRemote()
	}
	if config.File == "" {
		return nil, fmt.Errorf("a path was not specified")
	}

	if config.File != ":memory:" {
		err := os.MkdirAll(filepath.Dir(config.File), 0777)
		if err != nil {
			return nil, err
		}
	}

	values := url.Values{}
	values.Add("_pragma", "busy_timeout(5000)")
	values.Add("_pragma", "foreign_keys(1)")
	if config.File != ":memory:" {
		values.Add("_pragma", "journal_mode(WAL)")
	}
	values.Add("_txlock", "immediate")

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?%s", config.File, values.Encode()))
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer, see this stackoverflow post for more:
	// https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	return db, nil
}

func (config Struct) openRemote() (*sql.DB, error) {
	values := url.Values{}
	if config.AuthToken != "" {
		values.Add("authToken", config.AuthToken)
	}
	dsn := config.Url
	if len(values) > 0 {
		dsn += "?" + values.Encode()
	}
	return sql.Open("libsql", dsn)
}
