package repository

import (
	"context"
	"errors"

	"orgdirectory/internal/models"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrConflict   = errors.New("unique constraint violated")
	ErrForeignKey = errors.New("foreign key violated")
)

// Store scopes a unit of work. fn's writes commit only if it returns nil.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the per-entity CRUD surface available inside a transaction.
// Lookups return ErrNotFound when the row is missing.
type Tx interface {
	GetUser(ctx context.Context, id int, forUpdate bool) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UserExists(ctx context.Context, username, email string) (bool, error)
	InsertUser(ctx context.Context, u *models.User) (int, error)
	UpdateUser(ctx context.Context, u *models.User) error
	InsertAdmin(ctx context.Context, userID int) (int, error)

	GetDepartment(ctx context.Context, id int) (*models.Department, error)
	InsertDepartment(ctx context.Context, d *models.Department) (int, error)
	DeleteDepartment(ctx context.Context, id int) error

	GetManager(ctx context.Context, id int) (*models.Manager, error)
	ListManagers(ctx context.Context, f ManagerFilter) ([]models.Manager, error)
	InsertManager(ctx context.Context, m *models.Manager) (int, error)
	DeleteManager(ctx context.Context, id int) error

	GetEmployee(ctx context.Context, id int) (*models.Employee, error)
	ListEmployees(ctx context.Context, f EmployeeFilter) ([]models.Employee, error)
	InsertEmployee(ctx context.Context, e *models.Employee) (int, error)
	UpdateEmployee(ctx context.Context, e *models.Employee) error
	DeleteEmployee(ctx context.Context, id int) error

	GetTask(ctx context.Context, id int) (*models.Task, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, error)
	InsertTask(ctx context.Context, t *models.Task) (int, error)
	UpdateTask(ctx context.Context, t *models.Task) error
	UpdateTaskStatus(ctx context.Context, id int, status models.TaskStatus) error
	DeleteTask(ctx context.Context, id int) error
}

type ManagerFilter struct {
	DepartmentID *int
}

type EmployeeFilter struct {
	ManagerID    *int
	DepartmentID *int
}

type TaskFilter struct {
	EmployeeID *int
}
