package db

import (
	"database/sql"
	"fmt"
	"log"

	"versionvibe/config"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// DB is the shared raw connection used by the SQL repositories.
var DB *sql.DB

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to the database.")
	return nil
}

// InitDB bootstraps the schema, creating tables if they don't exist.
func InitDB() error {
	if err := createUsersTable(); err != nil {
		return err
	}
	if err := createCommentsTable(); err != nil {
		return err
	}

	log.Println("Database initialization completed.")
	return nil
}

func createUsersTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(100) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		display_name VARCHAR(100) NOT NULL DEFAULT '',
		avatar_url VARCHAR(512) NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

func createCommentsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS comments (
		id VARCHAR(64) PRIMARY KEY,
		version_id BIGINT NOT NULL,
		project_id BIGINT NOT NULL,
		author_id BIGINT NOT NULL,
		parent_id VARCHAR(64),
		content TEXT NOT NULL,
		timestamp_sec DOUBLE NOT NULL DEFAULT 0,
		created_at TIMESTAMP(3) DEFAULT CURRENT_TIMESTAMP(3),
		updated_at TIMESTAMP(3) NULL ON UPDATE CURRENT_TIMESTAMP(3),
		INDEX idx_comments_version (version_id, parent_id, created_at),
		INDEX idx_comments_parent (parent_id)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create comments table: %w", err)
	}
	return nil
}
