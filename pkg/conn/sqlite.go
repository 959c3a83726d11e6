package conn

import (
	"github.com/glebarez/sqlite"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"
)

// MemorySQLite is the path of a private in-memory database.
const MemorySQLite = ":memory:"

// OpenSQLite opens an SQLite file, created if missing. The pool is limited to
// a single connection so that MemorySQLite stays one database.
func OpenSQLite(path string, config *gorm.Config) (*Client, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}

	db, err := gorm.Open(sqlite.Open(path), gormConfig(config))
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite").With("path", path)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "sqlite pool").With("path", path)
	}
	sqlDB.SetMaxOpenConns(1)

	return &Client{driver: DriverSQLite, db: db}, nil
}
