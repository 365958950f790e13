package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"orgdirectory/internal/models"
)

// MemoryStore is a generic, non-durable Store used for local runs and tests.
// It does not enforce foreign keys or cascades; the services replicate them.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	nextID      map[string]int
	users       map[int]models.User
	admins      map[int]models.Admin
	departments map[int]models.Department
	managers    map[int]models.Manager
	employees   map[int]models.Employee
	tasks       map[int]models.Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		nextID:      map[string]int{},
		users:       map[int]models.User{},
		admins:      map[int]models.Admin{},
		departments: map[int]models.Department{},
		managers:    map[int]models.Manager{},
		employees:   map[int]models.Employee{},
		tasks:       map[int]models.Task{},
	}}
}

// WithTx serializes transactions and commits the working copy only when fn
// succeeds and ctx is still live.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (st *memState) clone() *memState {
	c := &memState{
		nextID:      make(map[string]int, len(st.nextID)),
		users:       make(map[int]models.User, len(st.users)),
		admins:      make(map[int]models.Admin, len(st.admins)),
		departments: make(map[int]models.Department, len(st.departments)),
		managers:    make(map[int]models.Manager, len(st.managers)),
		employees:   make(map[int]models.Employee, len(st.employees)),
		tasks:       make(map[int]models.Task, len(st.tasks)),
	}
	for k, v := range st.nextID {
		c.nextID[k] = v
	}
	for k, v := range st.users {
		c.users[k] = cloneUser(v)
	}
	for k, v := range st.admins {
		c.admins[k] = v
	}
	for k, v := range st.departments {
		c.departments[k] = v
	}
	for k, v := range st.managers {
		c.managers[k] = cloneManager(v)
	}
	for k, v := range st.employees {
		c.employees[k] = cloneEmployee(v)
	}
	for k, v := range st.tasks {
		c.tasks[k] = cloneTask(v)
	}
	return c
}

func (st *memState) next(table string) int {
	st.nextID[table]++
	return st.nextID[table]
}

type memTx struct {
	st *memState
}

func (m *memTx) GetUser(_ context.Context, id int, _ bool) (*models.User, error) {
	u, ok := m.st.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u = cloneUser(u)
	return &u, nil
}

func (m *memTx) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range m.st.users {
		if u.Username == username {
			u = cloneUser(u)
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memTx) UserExists(_ context.Context, username, email string) (bool, error) {
	for _, u := range m.st.users {
		if u.Username == username || strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memTx) InsertUser(ctx context.Context, u *models.User) (int, error) {
	exists, _ := m.UserExists(ctx, u.Username, u.Email)
	if exists {
		return 0, fmt.Errorf("%w: users_username_email", ErrConflict)
	}
	row := cloneUser(*u)
	row.ID = m.st.next("users")
	now := time.Now()
	row.CreatedAt, row.UpdatedAt = now, now
	m.st.users[row.ID] = row
	return row.ID, nil
}

func (m *memTx) UpdateUser(_ context.Context, u *models.User) error {
	cur, ok := m.st.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Email = u.Email
	cur.IsVerified = u.IsVerified
	cur.Otp = copyPtr(u.Otp)
	cur.OtpExpiration = copyPtr(u.OtpExpiration)
	cur.OtpResendCount = u.OtpResendCount
	cur.OtpAttempts = u.OtpAttempts
	cur.UpdatedAt = time.Now()
	m.st.users[u.ID] = cur
	return nil
}

func (m *memTx) InsertAdmin(_ context.Context, userID int) (int, error) {
	for _, a := range m.st.admins {
		if a.UserID == userID {
			return 0, fmt.Errorf("%w: admins_user_id_key", ErrConflict)
		}
	}
	a := models.Admin{ID: m.st.next("admins"), UserID: userID}
	m.st.admins[a.ID] = a
	return a.ID, nil
}

func (m *memTx) GetDepartment(_ context.Context, id int) (*models.Department, error) {
	d, ok := m.st.departments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *memTx) InsertDepartment(_ context.Context, d *models.Department) (int, error) {
	row := *d
	row.ID = m.st.next("departments")
	m.st.departments[row.ID] = row
	return row.ID, nil
}

func (m *memTx) DeleteDepartment(_ context.Context, id int) error {
	if _, ok := m.st.departments[id]; !ok {
		return ErrNotFound
	}
	delete(m.st.departments, id)
	return nil
}

func (m *memTx) GetManager(_ context.Context, id int) (*models.Manager, error) {
	mg, ok := m.st.managers[id]
	if !ok {
		return nil, ErrNotFound
	}
	mg = cloneManager(mg)
	return &mg, nil
}

func (m *memTx) ListManagers(_ context.Context, f ManagerFilter) ([]models.Manager, error) {
	out := []models.Manager{}
	for _, id := range sortedKeys(m.st.managers) {
		mg := m.st.managers[id]
		if f.DepartmentID != nil && mg.DepartmentID != *f.DepartmentID {
			continue
		}
		out = append(out, cloneManager(mg))
	}
	return out, nil
}

func (m *memTx) InsertManager(_ context.Context, mg *models.Manager) (int, error) {
	row := cloneManager(*mg)
	row.ID = m.st.next("managers")
	m.st.managers[row.ID] = row
	return row.ID, nil
}

func (m *memTx) DeleteManager(_ context.Context, id int) error {
	if _, ok := m.st.managers[id]; !ok {
		return ErrNotFound
	}
	delete(m.st.managers, id)
	return nil
}

func (m *memTx) GetEmployee(_ context.Context, id int) (*models.Employee, error) {
	e, ok := m.st.employees[id]
	if !ok {
		return nil, ErrNotFound
	}
	e = cloneEmployee(e)
	return &e, nil
}

func (m *memTx) ListEmployees(_ context.Context, f EmployeeFilter) ([]models.Employee, error) {
	out := []models.Employee{}
	for _, id := range sortedKeys(m.st.employees) {
		e := m.st.employees[id]
		if f.ManagerID != nil && (e.ManagerID == nil || *e.ManagerID != *f.ManagerID) {
			continue
		}
		if f.DepartmentID != nil && (e.DepartmentID == nil || *e.DepartmentID != *f.DepartmentID) {
			continue
		}
		out = append(out, cloneEmployee(e))
	}
	return out, nil
}

func (m *memTx) InsertEmployee(_ context.Context, e *models.Employee) (int, error) {
	row := cloneEmployee(*e)
	row.ID = m.st.next("employees")
	m.st.employees[row.ID] = row
	return row.ID, nil
}

func (m *memTx) UpdateEmployee(_ context.Context, e *models.Employee) error {
	if _, ok := m.st.employees[e.ID]; !ok {
		return ErrNotFound
	}
	m.st.employees[e.ID] = cloneEmployee(*e)
	return nil
}

func (m *memTx) DeleteEmployee(_ context.Context, id int) error {
	if _, ok := m.st.employees[id]; !ok {
		return ErrNotFound
	}
	delete(m.st.employees, id)
	return nil
}

func (m *memTx) GetTask(_ context.Context, id int) (*models.Task, error) {
	t, ok := m.st.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	t = cloneTask(t)
	return &t, nil
}

func (m *memTx) ListTasks(_ context.Context, f TaskFilter) ([]models.Task, error) {
	out := []models.Task{}
	for _, id := range sortedKeys(m.st.tasks) {
		t := m.st.tasks[id]
		if f.EmployeeID != nil && t.EmployeeID != *f.EmployeeID {
			continue
		}
		out = append(out, cloneTask(t))
	}
	return out, nil
}

func (m *memTx) InsertTask(_ context.Context, t *models.Task) (int, error) {
	row := cloneTask(*t)
	row.ID = m.st.next("tasks")
	m.st.tasks[row.ID] = row
	return row.ID, nil
}

func (m *memTx) UpdateTask(_ context.Context, t *models.Task) error {
	cur, ok := m.st.tasks[t.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Name = t.Name
	cur.Description = t.Description
	cur.DueDate = copyPtr(t.DueDate)
	cur.Status = t.Status
	m.st.tasks[t.ID] = cur
	return nil
}

func (m *memTx) UpdateTaskStatus(_ context.Context, id int, status models.TaskStatus) error {
	cur, ok := m.st.tasks[id]
	if !ok {
		return ErrNotFound
	}
	cur.Status = status
	m.st.tasks[id] = cur
	return nil
}

func (m *memTx) DeleteTask(_ context.Context, id int) error {
	if _, ok := m.st.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(m.st.tasks, id)
	return nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneUser(u models.User) models.User {
	u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	u.PasswordSalt = append([]byte(nil), u.PasswordSalt...)
	u.Otp = copyPtr(u.Otp)
	u.OtpExpiration = copyPtr(u.OtpExpiration)
	return u
}

func cloneManager(m models.Manager) models.Manager {
	m.UserID = copyPtr(m.UserID)
	return m
}

func cloneEmployee(e models.Employee) models.Employee {
	e.DepartmentID = copyPtr(e.DepartmentID)
	e.ManagerID = copyPtr(e.ManagerID)
	e.UserID = copyPtr(e.UserID)
	return e
}

func cloneTask(t models.Task) models.Task {
	t.DueDate = copyPtr(t.DueDate)
	return t
}
