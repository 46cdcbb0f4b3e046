package gormstore

import (
	"strings"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Open connects to the database named by dbURL. postgres:// and postgresql://
// URLs use PostgreSQL; sqlite:// URLs and bare paths use SQLite. SQLite paths
// follow the SQLAlchemy convention: sqlite:///rel.db and sqlite:////abs/path.db.
func Open(dbURL string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	switch {
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		db, err := gorm.Open(postgres.Open(dbURL), cfg)
		return db, errors.Wrap(err, "open postgres")
	case dbURL == "":
		return nil, errors.New("database url is empty")
	}

	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        sqliteDSN(dbURL),
	}, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	// One writer at a time; a second connection would see SQLITE_BUSY mid-transaction.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

func sqliteDSN(dbURL string) string {
	path := dbURL
	if rest, ok := strings.CutPrefix(dbURL, "sqlite://"); ok {
		path = strings.TrimPrefix(rest, "/")
	}
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}
