package database

import (
	"database/sql"
	"fmt"
)

// Schema is created on startup; statements are idempotent so restarting
// against an existing database is safe.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE,
		role          TEXT NOT NULL CHECK (role IN ('teacher', 'student')),
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS classes (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		teacher_id TEXT NOT NULL REFERENCES users(id),
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		class_id   TEXT NOT NULL REFERENCES classes(id),
		student_id TEXT NOT NULL REFERENCES users(id),
		PRIMARY KEY (class_id, student_id)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_sessions (
		id         TEXT PRIMARY KEY,
		class_id   TEXT NOT NULL REFERENCES classes(id),
		class_name TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		ended_at   TIMESTAMP NOT NULL,
		present    INTEGER NOT NULL,
		absent     INTEGER NOT NULL,
		total      INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		session_id    TEXT NOT NULL REFERENCES attendance_sessions(id),
		student_id    TEXT NOT NULL,
		student_name  TEXT NOT NULL,
		student_email TEXT NOT NULL,
		status        TEXT NOT NULL,
		PRIMARY KEY (session_id, student_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_enrollments_student ON enrollments(student_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_class ON attendance_sessions(class_id, ended_at)`,
}

func applySchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}
