package common

import (
	"log"
	"os"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectDb opens the main database. DATABASE_URL selects the dialect:
// "postgres://..." for PostgreSQL, "sqlite://<file>" (or a bare file path)
// for SQLite.
func ConnectDb() *gorm.DB {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "sqlite://inkwell.db"
		log.Println("DATABASE_URL not set, defaulting to 'sqlite://inkwell.db'")
	}

	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dbURL, "postgres://"):
		dialector = postgres.Open(dbURL)
		log.Println("connecting to postgres database")
	case strings.HasPrefix(dbURL, "sqlite://"):
		dialector = sqlite.Open(strings.TrimPrefix(dbURL, "sqlite://"))
		log.Println("connecting to sqlite database at:", strings.TrimPrefix(dbURL, "sqlite://"))
	default:
		dialector = sqlite.Open(dbURL)
		log.Println("connecting to sqlite database at:", dbURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Println("Error opening database: " + err.Error())
		return nil
	}
	return db
}

// ConnectAnalyticsDb opens the separate analytics database. Analytics is
// disabled when ANALYTICS_DB is not set.
func ConnectAnalyticsDb() *gorm.DB {
	analyticsDbFile := os.Getenv("ANALYTICS_DB")
	if analyticsDbFile == "" {
		log.Println("ANALYTICS_DB not set - analytics will be disabled")
		return nil
	}

	db, err := gorm.Open(sqlite.Open(analyticsDbFile), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Println("Error opening analytics db: " + err.Error())
		return nil
	}

	log.Println("opened analytics db at:", analyticsDbFile)
	return db
}
