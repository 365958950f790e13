package repository

import (
	"database/sql"
	"fmt"

	"orgdirectory/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id SERIAL PRIMARY KEY,
    username VARCHAR(255) NOT NULL UNIQUE,
    email VARCHAR(255) NOT NULL UNIQUE,
    password_hash BYTEA NOT NULL,
    password_salt BYTEA NOT NULL,
    role VARCHAR(32) NOT NULL CHECK (role IN ('Admin', 'Manager', 'Employee')),
    is_verified BOOLEAN NOT NULL DEFAULT FALSE,
    otp TEXT,
    otp_expiration TIMESTAMPTZ,
    otp_resend_count INT NOT NULL DEFAULT 0 CHECK (otp_resend_count >= 0),
    otp_failed_attempts INT NOT NULL DEFAULT 0 CHECK (otp_failed_attempts >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

ALTER TABLE users ADD COLUMN IF NOT EXISTS otp_failed_attempts INT NOT NULL DEFAULT 0;

CREATE TABLE IF NOT EXISTS admins (
    id SERIAL PRIMARY KEY,
    user_id INT NOT NULL UNIQUE REFERENCES users (id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS departments (
    id SERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL
);

CREATE TABLE IF NOT EXISTS managers (
    id SERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    age INT NOT NULL,
    salary INT NOT NULL,
    is_appointed BOOLEAN NOT NULL DEFAULT FALSE,
    department_id INT NOT NULL REFERENCES departments (id) ON DELETE CASCADE,
    user_id INT REFERENCES users (id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS employees (
    id SERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    age INT NOT NULL,
    salary INT NOT NULL,
    phone VARCHAR(64) NOT NULL DEFAULT '',
    address TEXT NOT NULL DEFAULT '',
    department_id INT REFERENCES departments (id) ON DELETE SET NULL,
    manager_id INT REFERENCES managers (id) ON DELETE SET NULL,
    user_id INT REFERENCES users (id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS employee_tasks (
    id SERIAL PRIMARY KEY,
    employee_id INT NOT NULL REFERENCES employees (id) ON DELETE CASCADE,
    name VARCHAR(255) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_date TIMESTAMPTZ NOT NULL,
    due_date TIMESTAMPTZ,
    status VARCHAR(32) NOT NULL CHECK (status IN ('Pending', 'InProgress', 'Done'))
);
`

// CreateTableIfNotExists applies the directory schema.
func CreateTableIfNotExists(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	logger.SystemLogger.Info("Tables 'users', 'admins', 'departments', 'managers', 'employees', 'employee_tasks' are ready")
	return nil
}

func DeleteAllTable(db *sql.DB) error {
	query := `
    DROP TABLE IF EXISTS employee_tasks;
    DROP TABLE IF EXISTS employees;
    DROP TABLE IF EXISTS managers;
    DROP TABLE IF EXISTS departments;
    DROP TABLE IF EXISTS admins;
    DROP TABLE IF EXISTS users;
    `
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	logger.SystemLogger.Info("Directory tables are deleted")
	return nil
}
