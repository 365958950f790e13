package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"orgdirectory/internal/models"
	"orgdirectory/pkg/logger"
)

const (
	pqUniqueViolation      = "23505"
	pqForeignKeyViolation  = "23503"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// PostgresStore runs every unit of work in a serializable transaction and
// retries serialization failures a bounded number of times.
type PostgresStore struct {
	db          *sql.DB
	maxAttempts int
	backoff     time.Duration
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, maxAttempts: 3, backoff: 20 * time.Millisecond}
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) || attempt >= s.maxAttempts {
			return err
		}
		logger.SystemLogger.Warn("Retrying transaction", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt)):
		}
	}
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
	}
	return false
}

// mapErr translates driver errors into the repository sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
		case pqForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrForeignKey, pqErr.Constraint)
		}
	}
	return err
}

type pgTx struct {
	tx *sql.Tx
}

const userColumns = `id, username, email, password_hash, password_salt, role, is_verified,
	otp, otp_expiration, otp_resend_count, otp_failed_attempts, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var (
		u      models.User
		role   string
		otp    sql.NullString
		otpExp sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.PasswordSalt, &role, &u.IsVerified,
		&otp, &otpExp, &u.OtpResendCount, &u.OtpAttempts, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	u.Role = models.Role(role)
	if otp.Valid {
		u.Otp = &otp.String
	}
	if otpExp.Valid {
		t := otpExp.Time
		u.OtpExpiration = &t
	}
	return &u, nil
}

func (p *pgTx) GetUser(ctx context.Context, id int, forUpdate bool) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	return scanUser(p.tx.QueryRowContext(ctx, query, id))
}

func (p *pgTx) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(p.tx.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = $1", username))
}

func (p *pgTx) UserExists(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	err := p.tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR lower(email) = lower($2))",
		username, email).Scan(&exists)
	return exists, mapErr(err)
}

func (p *pgTx) InsertUser(ctx context.Context, u *models.User) (int, error) {
	var id int
	err := p.tx.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, password_salt, role, is_verified, otp, otp_expiration, otp_resend_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		u.Username, u.Email, u.PasswordHash, u.PasswordSalt, string(u.Role), u.IsVerified,
		nullString(u.Otp), nullTime(u.OtpExpiration), u.OtpResendCount,
	).Scan(&id)
	return id, mapErr(err)
}

func (p *pgTx) UpdateUser(ctx context.Context, u *models.User) error {
	res, err := p.tx.ExecContext(ctx, `
		UPDATE users
		SET email = $1, is_verified = $2, otp = $3, otp_expiration = $4, otp_resend_count = $5,
			otp_failed_attempts = $6, updated_at = CURRENT_TIMESTAMP
		WHERE id = $7`,
		u.Email, u.IsVerified, nullString(u.Otp), nullTime(u.OtpExpiration), u.OtpResendCount, u.OtpAttempts, u.ID)
	return affectedOne(res, err)
}

func (p *pgTx) InsertAdmin(ctx context.Context, userID int) (int, error) {
	var id int
	err := p.tx.QueryRowContext(ctx, "INSERT INTO admins (user_id) VALUES ($1) RETURNING id", userID).Scan(&id)
	return id, mapErr(err)
}

func (p *pgTx) GetDepartment(ctx context.Context, id int) (*models.Department, error) {
	var d models.Department
	err := p.tx.QueryRowContext(ctx, "SELECT id, name FROM departments WHERE id = $1", id).Scan(&d.ID, &d.Name)
	if err != nil {
		return nil, mapErr(err)
	}
	return &d, nil
}

func (p *pgTx) InsertDepartment(ctx context.Context, d *models.Department) (int, error) {
	var id int
	err := p.tx.QueryRowContext(ctx, "INSERT INTO departments (name) VALUES ($1) RETURNING id", d.Name).Scan(&id)
	return id, mapErr(err)
}

func (p *pgTx) DeleteDepartment(ctx context.Context, id int) error {
	return affectedOne(p.tx.ExecContext(ctx, "DELETE FROM departments WHERE id = $1", id))
}

const managerColumns = "id, name, age, salary, is_appointed, department_id, user_id"

func scanManager(row interface{ Scan(...any) error }) (*models.Manager, error) {
	var (
		m      models.Manager
		userID sql.NullInt64
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Age, &m.Salary, &m.IsAppointed, &m.DepartmentID, &userID); err != nil {
		return nil, mapErr(err)
	}
	m.UserID = intPtr(userID)
	return &m, nil
}

func (p *pgTx) GetManager(ctx context.Context, id int) (*models.Manager, error) {
	return scanManager(p.tx.QueryRowContext(ctx, "SELECT "+managerColumns+" FROM managers WHERE id = $1", id))
}

func (p *pgTx) ListManagers(ctx context.Context, f ManagerFilter) ([]models.Manager, error) {
	rows, err := p.tx.QueryContext(ctx,
		"SELECT "+managerColumns+" FROM managers WHERE ($1::INT IS NULL OR department_id = $1) ORDER BY id",
		nullInt(f.DepartmentID))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	managers := []models.Manager{}
	for rows.Next() {
		m, err := scanManager(rows)
		if err != nil {
			return nil, err
		}
		managers = append(managers, *m)
	}
	return managers, rows.Err()
}

func (p *pgTx) InsertManager(ctx context.Context, m *models.Manager) (int, error) {
	var id int
	err := p.tx.QueryRowContext(ctx, `
		INSERT INTO managers (name, age, salary, is_appointed, department_id, user_id)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		m.Name, m.Age, m.Salary, m.IsAppointed, m.DepartmentID, nullInt(m.UserID),
	).Scan(&id)
	return id, mapErr(err)
}

func (p *pgTx) DeleteManager(ctx context.Context, id int) error {
	return affectedOne(p.tx.ExecContext(ctx, "DELETE FROM managers WHERE id = $1", id))
}

const employeeColumns = "id, name, age, salary, phone, address, department_id, manager_id, user_id"

func scanEmployee(row interface{ Scan(...any) error }) (*models.Employee, error) {
	var (
		e                         models.Employee
		deptID, managerID, userID sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.Name, &e.Age, &e.Salary, &e.Phone, &e.Address, &deptID, &managerID, &userID)
	if err != nil {
		return nil, mapErr(err)
	}
	e.DepartmentID = intPtr(deptID)
	e.ManagerID = intPtr(managerID)
	e.UserID = intPtr(userID)
	return &e, nil
}

func (p *pgTx) GetEmployee(ctx context.Context, id int) (*models.Employee, error) {
	return scanEmployee(p.tx.QueryRowContext(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = $1", id))
}

func (p *pgTx) ListEmployees(ctx context.Context, f EmployeeFilter) ([]models.Employee, error) {
	rows, err := p.tx.QueryContext(ctx, `
		SELECT `+employeeColumns+` FROM employees
		WHERE ($1::INT IS NULL OR manager_id = $1) AND ($2::INT IS NULL OR department_id = $2)
		ORDER BY id`,
		nullInt(f.ManagerID), nullInt(f.DepartmentID))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	employees := []models.Employee{}
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, *e)
	}
	return employees, rows.Err()
}

func (p *pgTx) InsertEmployee(ctx context.Context, e *models.Employee) (int, error) {
	var id int
	err := p.tx.QueryRowContext(ctx, `
		INSERT INTO employees (name, age, salary, phone, address, department_id, manager_id, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		e.Name, e.Age, e.Salary, e.Phone, e.Address, nullInt(e.DepartmentID), nullInt(e.ManagerID), nullInt(e.UserID),
	).Scan(&id)
	return id, mapErr(err)
}

func (p *pgTx) UpdateEmployee(ctx context.Context, e *models.Employee) error {
	res, err := p.tx.ExecContext(ctx, `
		UPDATE employees
		SET name = $1, age = $2, salary = $3, phone = $4, address = $5,
			department_id = $6, manager_id = $7, user_id = $8
		WHERE id = $9`,
		e.Name, e.Age, e.Salary, e.Phone, e.Address,
		nullInt(e.DepartmentID), nullInt(e.ManagerID), nullInt(e.UserID), e.ID)
	return affectedOne(res, err)
}

func (p *pgTx) DeleteEmployee(ctx context.Context, id int) error {
	return affectedOne(p.tx.ExecContext(ctx, "DELETE FROM employees WHERE id = $1", id))
}

const taskColumns = "id, employee_id, name, description, created_date, due_date, status"

func scanTask(row interface{ Scan(...any) error }) (*models.Task, error) {
	var (
		t      models.Task
		due    sql.NullTime
		status string
	)
	if err := row.Scan(&t.ID, &t.EmployeeID, &t.Name, &t.Description, &t.CreatedDate, &due, &status); err != nil {
		return nil, mapErr(err)
	}
	if due.Valid {
		d := due.Time
		t.DueDate = &d
	}
	t.Status = models.TaskStatus(status)
	return &t, nil
}

func (p *pgTx) GetTask(ctx context.Context, id int) (*models.Task, error) {
	return scanTask(p.tx.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM employee_tasks WHERE id = $1", id))
}

func (p *pgTx) ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, error) {
	rows, err := p.tx.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM employee_tasks WHERE ($1::INT IS NULL OR employee_id = $1) ORDER BY id",
		nullInt(f.EmployeeID))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (p *pgTx) InsertTask(ctx context.Context, t *models.Task) (int, error) {
	var id int
	err := p.tx.QueryRowContext(ctx, `
		INSERT INTO employee_tasks (employee_id, name, description, created_date, due_date, status)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		t.EmployeeID, t.Name, t.Description, t.CreatedDate, nullTime(t.DueDate), string(t.Status),
	).Scan(&id)
	return id, mapErr(err)
}

func (p *pgTx) UpdateTask(ctx context.Context, t *models.Task) error {
	res, err := p.tx.ExecContext(ctx, `
		UPDATE employee_tasks
		SET name = $1, description = $2, due_date = $3, status = $4
		WHERE id = $5`,
		t.Name, t.Description, nullTime(t.DueDate), string(t.Status), t.ID)
	return affectedOne(res, err)
}

func (p *pgTx) UpdateTaskStatus(ctx context.Context, id int, status models.TaskStatus) error {
	return affectedOne(p.tx.ExecContext(ctx, "UPDATE employee_tasks SET status = $1 WHERE id = $2", string(status), id))
}

func (p *pgTx) DeleteTask(ctx context.Context, id int) error {
	return affectedOne(p.tx.ExecContext(ctx, "DELETE FROM employee_tasks WHERE id = $1", id))
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
