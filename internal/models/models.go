package models

import (
	"time"
)

type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleManager  Role = "Manager"
	RoleEmployee Role = "Employee"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	default:
		return false
	}
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "Pending"
	TaskInProgress TaskStatus = "InProgress"
	TaskDone       TaskStatus = "Done"
)

// Valid reports whether s is one of the declared task states.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskDone:
		return true
	default:
		return false
	}
}

// User is the identity row. Otp holds the sealed code, never the plaintext.
type User struct {
	ID             int        `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	PasswordHash   []byte     `json:"-"`
	PasswordSalt   []byte     `json:"-"`
	Role           Role       `json:"role"`
	IsVerified     bool       `json:"is_verified"`
	Otp            *string    `json:"-"`
	OtpExpiration  *time.Time `json:"-"`
	OtpResendCount int        `json:"-"`
	OtpAttempts    int        `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type Admin struct {
	ID     int `json:"id"`
	UserID int `json:"user_id"`
}

type Department struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Manager struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Age          int    `json:"age"`
	Salary       int    `json:"salary"`
	IsAppointed  bool   `json:"is_appointed"`
	DepartmentID int    `json:"department_id"`
	UserID       *int   `json:"user_id"`
}

type Employee struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Age          int    `json:"age"`
	Salary       int    `json:"salary"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	DepartmentID *int   `json:"department_id"`
	ManagerID    *int   `json:"manager_id"`
	UserID       *int   `json:"user_id"`
}

type Task struct {
	ID          int        `json:"id"`
	EmployeeID  int        `json:"employee_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	CreatedDate time.Time  `json:"created_date"`
	DueDate     *time.Time `json:"due_date"`
	Status      TaskStatus `json:"status"`
}

// Principal is the authenticated caller handed to the authorization gate.
type Principal struct {
	UserID int  `json:"user_id"`
	Role   Role `json:"role"`
}

// EmployeeView is the Employee → Manager → Department read model.
type EmployeeView struct {
	Employee
	EffectiveDepartmentID *int    `json:"effective_department_id"`
	ManagerName           *string `json:"manager_name"`
	ManagerIsAppointed    *bool   `json:"manager_is_appointed"`
	DepartmentName        *string `json:"department_name"`
}

// DeleteSummary lists the dependent rows a delete removed or detached.
type DeleteSummary struct {
	ID                int   `json:"id"`
	DeletedTasks      []int `json:"deleted_tasks,omitempty"`
	DeletedManagers   []int `json:"deleted_managers,omitempty"`
	DetachedEmployees []int `json:"detached_employees,omitempty"`
}

type TaskEventType string

const (
	TaskAssigned      TaskEventType = "task.assigned"
	TaskUpdated       TaskEventType = "task.updated"
	TaskStatusChanged TaskEventType = "task.status_changed"
	TaskDeleted       TaskEventType = "task.deleted"
)

type TaskEvent struct {
	Type       TaskEventType `json:"type"`
	Task       Task          `json:"task"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// UserView hides credential and OTP columns.
type UserView struct {
	ID         int       `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Role       Role      `json:"role"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

func (u User) View() UserView {
	return UserView{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Role:       u.Role,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
	}
}
