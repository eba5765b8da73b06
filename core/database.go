package core

import (
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDatabase picks the gorm dialector from the DSN: postgres URLs and
// key/value DSNs go to Postgres, anything else is a SQLite file path.
func OpenDatabase(dsn string) (*gorm.DB, error) {
	return gorm.Open(dialector(dsn), &gorm.Config{Logger: gormLogger(os.Stdout)})
}

// gormLogger reports SQL errors only. An empty queue is not one.
func gormLogger(w io.Writer) logger.Interface {
	return logger.New(
		log.New(w, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:                  false,
			LogLevel:                  logger.Error,
			SlowThreshold:             time.Second,
			IgnoreRecordNotFoundError: true,
		},
	)
}

func dialector(dsn string) gorm.Dialector {
	if isPostgres(dsn) {
		return postgres.Open(dsn)
	}
	return sqlite.Open(dsn)
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}
