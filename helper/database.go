package helper

import (
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// DatabaseConfiguration holds the connection parameters for PostgreSQL.
// All values come from the environment.
type DatabaseConfiguration struct {
	Host     string
	Port     string
	Name     string
	Username string
	Password string
	Schema   string
}

// NewDatabaseConfiguration reads the connection parameters from the
// ROLECARD_DB_* environment variables.
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	config := &DatabaseConfiguration{
		Host:     os.Getenv("ROLECARD_DB_HOST"),
		Port:     os.Getenv("ROLECARD_DB_PORT"),
		Name:     os.Getenv("ROLECARD_DB_DATABASE"),
		Username: os.Getenv("ROLECARD_DB_USERNAME"),
		Password: os.Getenv("ROLECARD_DB_PASSWORD"),
		Schema:   os.Getenv("ROLECARD_DB_SCHEMA"),
	}

	if config.Host == "" || config.Port == "" || config.Name == "" || config.Username == "" {
		return nil, fmt.Errorf("incomplete database configuration, need ROLECARD_DB_HOST, ROLECARD_DB_PORT, ROLECARD_DB_DATABASE and ROLECARD_DB_USERNAME")
	}
	if config.Schema == "" {
		config.Schema = "public"
	}

	return config, nil
}

// Database bundles an open connection with the logger the handlers use.
type Database struct {
	Name     string
	Instance *sql.DB
	Logger   *slog.Logger
}

// NewDatabase opens a connection to the configured PostgreSQL instance.
// It panics if the database is unreachable; persistence is explicitly
// requested by the caller and cannot degrade silently.
func NewDatabase(name string, config *DatabaseConfiguration, logger *slog.Logger) *Database {
	connection := fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s search_path=%s sslmode=disable",
		config.Host, config.Port, config.Name, config.Username, config.Password, config.Schema,
	)

	instance, err := sql.Open("postgres", connection)
	if err != nil {
		log.Panicf("error opening database connection: %v", err)
	}

	instance.SetMaxOpenConns(10)
	instance.SetMaxIdleConns(5)
	instance.SetConnMaxLifetime(time.Hour)

	if err := instance.Ping(); err != nil {
		log.Panicf("error pinging database: %v", err)
	}

	logger.Info("Connected to database", slog.String("name", name), slog.String("host", config.Host))

	return &Database{
		Name:     name,
		Instance: instance,
		Logger:   logger,
	}
}
