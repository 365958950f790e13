package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"orgdirectory/internal/config"
	"orgdirectory/internal/models"
	"orgdirectory/internal/repository"
	"orgdirectory/pkg/logger"
)

// ViewCache stores assembled employee views between requests. Version is
// read before a view is assembled and handed back to Set; Set drops the view
// if Invalidate ran in between.
type ViewCache interface {
	Get(ctx context.Context, id int) (*models.EmployeeView, bool)
	Version(ctx context.Context, id int) (int64, bool)
	Set(ctx context.Context, view models.EmployeeView, version int64)
	Invalidate(ctx context.Context, ids ...int)
}

// TaskPublisher fans task changes out to live subscribers.
type TaskPublisher interface {
	Publish(event models.TaskEvent)
}

// HierarchyService keeps Employee, Manager, Department and Task rows
// consistent. Cascades are applied here so a generic store stays correct.
type HierarchyService struct {
	store  repository.Store
	cache  ViewCache
	events TaskPublisher
	now    func() time.Time
}

type HierarchyOption func(*HierarchyService)

func WithViewCache(c ViewCache) HierarchyOption {
	return func(s *HierarchyService) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithTaskPublisher(p TaskPublisher) HierarchyOption {
	return func(s *HierarchyService) {
		if p != nil {
			s.events = p
		}
	}
}

func WithHierarchyClock(now func() time.Time) HierarchyOption {
	return func(s *HierarchyService) { s.now = now }
}

func NewHierarchyService(store repository.Store, opts ...HierarchyOption) *HierarchyService {
	s := &HierarchyService{
		store:  store,
		cache:  noopCache{},
		events: noopPublisher{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type noopCache struct{}

func (noopCache) Get(context.Context, int) (*models.EmployeeView, bool) { return nil, false }
func (noopCache) Version(context.Context, int) (int64, bool)            { return 0, false }
func (noopCache) Set(context.Context, models.EmployeeView, int64)       {}
func (noopCache) Invalidate(context.Context, ...int)                    {}

type noopPublisher struct{}

func (noopPublisher) Publish(models.TaskEvent) {}

type EmployeeInput struct {
	Name         string `json:"name" validate:"required,max=255"`
	Age          int    `json:"age" validate:"gte=0,lte=150"`
	Salary       int    `json:"salary" validate:"gte=0"`
	Phone        string `json:"phone" validate:"max=64"`
	Address      string `json:"address"`
	DepartmentID *int   `json:"department_id"`
	ManagerID    *int   `json:"manager_id"`
	UserID       *int   `json:"user_id"`
}

// EmployeeUpdate has no department or user fields: those are not settable
// once the employee exists.
type EmployeeUpdate struct {
	Name      string `json:"name" validate:"required,max=255"`
	Age       int    `json:"age" validate:"gte=0,lte=150"`
	Salary    int    `json:"salary" validate:"gte=0"`
	Phone     string `json:"phone" validate:"max=64"`
	Address   string `json:"address"`
	ManagerID *int   `json:"manager_id"`
}

type ManagerInput struct {
	Name         string `json:"name" validate:"required,max=255"`
	Age          int    `json:"age" validate:"gte=0,lte=150"`
	Salary       int    `json:"salary" validate:"gte=0"`
	IsAppointed  bool   `json:"is_appointed"`
	DepartmentID int    `json:"department_id" validate:"required"`
	UserID       *int   `json:"user_id"`
}

type TaskInput struct {
	Name        string             `json:"name" validate:"required,max=255"`
	Description string             `json:"description"`
	CreatedDate *time.Time         `json:"created_date"`
	DueDate     *time.Time         `json:"due_date"`
	Status      *models.TaskStatus `json:"status"`
}

type TaskUpdate struct {
	Name        string            `json:"name" validate:"required,max=255"`
	Description string            `json:"description"`
	DueDate     *time.Time        `json:"due_date"`
	Status      models.TaskStatus `json:"status" validate:"required,taskstatus"`
}

func validateInput(in any) error {
	if err := config.Validate.Struct(in); err != nil {
		return ValidationError("validation error: %v", err)
	}
	return nil
}

// notFound converts a missing row into a NotFoundError for entity/id.
func notFound(err error, entity string, id int) error {
	if errors.Is(err, repository.ErrNotFound) {
		return NotFoundError(entity, id)
	}
	return err
}

// mustExist turns a missing referenced row into a ValidationError.
func mustExist(err error, field string, id int) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ValidationError("invalid %s '%d'", field, id)
	}
	return err
}

// foreignKey covers references that vanish between check and write.
func foreignKey(err error) error {
	if errors.Is(err, repository.ErrForeignKey) {
		return ValidationError("referenced record does not exist")
	}
	return err
}

func (s *HierarchyService) CreateDepartment(ctx context.Context, name string) models.ServiceResponse[models.Department] {
	dept := models.Department{Name: strings.TrimSpace(name)}
	if dept.Name == "" {
		return respond("create_department", dept, ValidationError("department name is required"), "")
	}
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		dept.ID, err = tx.InsertDepartment(ctx, &dept)
		return err
	})
	if err == nil {
		logger.AuditLogger.Info("Department created", zap.Int("department_id", dept.ID))
	}
	return respond("create_department", dept, err, "Department created successfully")
}

// DeleteDepartment removes the department together with its managers.
// Employees lose their manager and department references but survive.
func (s *HierarchyService) DeleteDepartment(ctx context.Context, id int) models.ServiceResponse[models.DeleteSummary] {
	summary := models.DeleteSummary{ID: id}
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetDepartment(ctx, id); err != nil {
			return notFound(err, "department", id)
		}
		managers, err := tx.ListManagers(ctx, repository.ManagerFilter{DepartmentID: &id})
		if err != nil {
			return err
		}
		for _, m := range managers {
			detached, err := detachEmployees(ctx, tx, m.ID)
			if err != nil {
				return err
			}
			summary.DetachedEmployees = append(summary.DetachedEmployees, detached...)
			if err := tx.DeleteManager(ctx, m.ID); err != nil {
				return err
			}
			summary.DeletedManagers = append(summary.DeletedManagers, m.ID)
		}

		members, err := tx.ListEmployees(ctx, repository.EmployeeFilter{DepartmentID: &id})
		if err != nil {
			return err
		}
		for _, e := range members {
			e.DepartmentID = nil
			if err := tx.UpdateEmployee(ctx, &e); err != nil {
				return err
			}
			summary.DetachedEmployees = appendUnique(summary.DetachedEmployees, e.ID)
		}
		return tx.DeleteDepartment(ctx, id)
	})
	if err == nil {
		s.cache.Invalidate(ctx, summary.DetachedEmployees...)
		logger.AuditLogger.Info("Department deleted", zap.Int("department_id", id),
			zap.Ints("deleted_managers", summary.DeletedManagers))
	}
	return respond("delete_department", summary, err, "Department deleted successfully")
}

func (s *HierarchyService) CreateManager(ctx context.Context, in ManagerInput) models.ServiceResponse[models.Manager] {
	var mgr models.Manager
	if err := validateInput(in); err != nil {
		return respond("create_manager", mgr, err, "")
	}
	mgr = models.Manager{
		Name:         strings.TrimSpace(in.Name),
		Age:          in.Age,
		Salary:       in.Salary,
		IsAppointed:  in.IsAppointed,
		DepartmentID: in.DepartmentID,
		UserID:       in.UserID,
	}
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetDepartment(ctx, in.DepartmentID); err != nil {
			return mustExist(err, "department id", in.DepartmentID)
		}
		if in.UserID != nil {
			if _, err := tx.GetUser(ctx, *in.UserID, false); err != nil {
				return mustExist(err, "user id", *in.UserID)
			}
		}
		var err error
		mgr.ID, err = tx.InsertManager(ctx, &mgr)
		return foreignKey(err)
	})
	if err == nil {
		logger.AuditLogger.Info("Manager created", zap.Int("manager_id", mgr.ID))
	}
	return respond("create_manager", mgr, err, "Manager created successfully")
}

// DeleteManager detaches the manager's employees and removes the manager.
// The department is left alone.
func (s *HierarchyService) DeleteManager(ctx context.Context, id int) models.ServiceResponse[models.DeleteSummary] {
	summary := models.DeleteSummary{ID: id}
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetManager(ctx, id); err != nil {
			return notFound(err, "manager", id)
		}
		detached, err := detachEmployees(ctx, tx, id)
		if err != nil {
			return err
		}
		summary.DetachedEmployees = detached
		return tx.DeleteManager(ctx, id)
	})
	if err == nil {
		s.cache.Invalidate(ctx, summary.DetachedEmployees...)
		logger.AuditLogger.Info("Manager deleted", zap.Int("manager_id", id),
			zap.Ints("detached_employees", summary.DetachedEmployees))
	}
	return respond("delete_manager", summary, err, "Manager deleted successfully")
}

func detachEmployees(ctx context.Context, tx repository.Tx, managerID int) ([]int, error) {
	employees, err := tx.ListEmployees(ctx, repository.EmployeeFilter{ManagerID: &managerID})
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(employees))
	for _, e := range employees {
		e.ManagerID = nil
		if err := tx.UpdateEmployee(ctx, &e); err != nil {
			return nil, err
		}
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (s *HierarchyService) GetEmployeesByManager(ctx context.Context, managerID int) models.ServiceResponse[[]models.Employee] {
	var employees []models.Employee
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetManager(ctx, managerID); err != nil {
			return notFound(err, "manager", managerID)
		}
		var err error
		employees, err = tx.ListEmployees(ctx, repository.EmployeeFilter{ManagerID: &managerID})
		return err
	})
	return respond("get_employees_by_manager", employees, err, "Employees fetched successfully")
}

// CreateEmployee inserts an employee after checking every supplied reference.
func (s *HierarchyService) CreateEmployee(ctx context.Context, in EmployeeInput) models.ServiceResponse[models.Employee] {
	var emp models.Employee
	if err := validateInput(in); err != nil {
		return respond("create_employee", emp, err, "")
	}
	emp = models.Employee{
		Name:         strings.TrimSpace(in.Name),
		Age:          in.Age,
		Salary:       in.Salary,
		Phone:        in.Phone,
		Address:      in.Address,
		DepartmentID: in.DepartmentID,
		ManagerID:    in.ManagerID,
		UserID:       in.UserID,
	}
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if in.DepartmentID != nil {
			if _, err := tx.GetDepartment(ctx, *in.DepartmentID); err != nil {
				return mustExist(err, "department id", *in.DepartmentID)
			}
		}
		if in.ManagerID != nil {
			if _, err := tx.GetManager(ctx, *in.ManagerID); err != nil {
				return mustExist(err, "manager id", *in.ManagerID)
			}
		}
		if in.UserID != nil {
			if _, err := tx.GetUser(ctx, *in.UserID, false); err != nil {
				return mustExist(err, "user id", *in.UserID)
			}
		}
		var err error
		emp.ID, err = tx.InsertEmployee(ctx, &emp)
		return foreignKey(err)
	})
	if err == nil {
		logger.AuditLogger.Info("Employee created", zap.Int("employee_id", emp.ID))
	}
	return respond("create_employee", emp, err, "Employee created successfully")
}

// UpdateEmployee overwrites the editable fields and the manager reference.
func (s *HierarchyService) UpdateEmployee(ctx context.Context, id int, in EmployeeUpdate) models.ServiceResponse[models.Employee] {
	var emp models.Employee
	if err := validateInput(in); err != nil {
		return respond("update_employee", emp, err, "")
	}
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		cur, err := tx.GetEmployee(ctx, id)
		if err != nil {
			return notFound(err, "employee", id)
		}
		if in.ManagerID != nil {
			if _, err := tx.GetManager(ctx, *in.ManagerID); err != nil {
				return mustExist(err, "manager id", *in.ManagerID)
			}
		}
		cur.Name = strings.TrimSpace(in.Name)
		cur.Salary = in.Salary
		cur.Age = in.Age
		cur.Phone = in.Phone
		cur.Address = in.Address
		cur.ManagerID = in.ManagerID
		if err := tx.UpdateEmployee(ctx, cur); err != nil {
			return foreignKey(err)
		}
		emp = *cur
		return nil
	})
	if err == nil {
		s.cache.Invalidate(ctx, id)
		logger.AuditLogger.Info("Employee updated", zap.Int("employee_id", id))
	}
	return respond("update_employee", emp, err, "Employee updated successfully")
}

// DeleteEmployee removes the employee and its tasks. The linked user stays.
func (s *HierarchyService) DeleteEmployee(ctx context.Context, id int) models.ServiceResponse[models.DeleteSummary] {
	summary := models.DeleteSummary{ID: id}
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetEmployee(ctx, id); err != nil {
			return notFound(err, "employee", id)
		}
		tasks, err := tx.ListTasks(ctx, repository.TaskFilter{EmployeeID: &id})
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if err := tx.DeleteTask(ctx, t.ID); err != nil {
				return err
			}
			summary.DeletedTasks = append(summary.DeletedTasks, t.ID)
		}
		return tx.DeleteEmployee(ctx, id)
	})
	if err == nil {
		s.cache.Invalidate(ctx, id)
		logger.AuditLogger.Info("Employee deleted", zap.Int("employee_id", id), zap.Ints("deleted_tasks", summary.DeletedTasks))
	}
	return respond("delete_employee", summary, err, "Employee deleted successfully")
}

// GetEmployeeByID assembles Employee → Manager → Department. A manager id
// that no longer resolves is reported, not hidden.
func (s *HierarchyService) GetEmployeeByID(ctx context.Context, id int) models.ServiceResponse[models.EmployeeView] {
	if view, ok := s.cache.Get(ctx, id); ok {
		return models.OK(*view, "Employee found (from cache)")
	}
	version, cacheable := s.cache.Version(ctx, id)

	var view models.EmployeeView
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		emp, err := tx.GetEmployee(ctx, id)
		if err != nil {
			return notFound(err, "employee", id)
		}
		view = models.EmployeeView{Employee: *emp, EffectiveDepartmentID: emp.DepartmentID}

		if emp.ManagerID != nil {
			mgr, err := tx.GetManager(ctx, *emp.ManagerID)
			if errors.Is(err, repository.ErrNotFound) {
				return DanglingReferenceError("employee", id, "manager", *emp.ManagerID)
			}
			if err != nil {
				return err
			}
			view.ManagerName = &mgr.Name
			view.ManagerIsAppointed = &mgr.IsAppointed
			view.EffectiveDepartmentID = &mgr.DepartmentID
		}

		if view.EffectiveDepartmentID != nil {
			deptID := *view.EffectiveDepartmentID
			dept, err := tx.GetDepartment(ctx, deptID)
			if errors.Is(err, repository.ErrNotFound) {
				return DanglingReferenceError("employee", id, "department", deptID)
			}
			if err != nil {
				return err
			}
			view.DepartmentName = &dept.Name
		}
		return nil
	})
	if err != nil {
		if IsKind(err, KindDanglingReference) {
			logger.ErrorLogger.Error("Dangling reference detected", zap.Int("employee_id", id), zap.Error(err))
		}
		return respond("get_employee", models.EmployeeView{}, err, "")
	}
	if cacheable {
		s.cache.Set(ctx, view, version)
	}
	return models.OK(view, "Employee found")
}

// AssignTask creates a task for an existing employee. Created date defaults
// to now and status to Pending.
func (s *HierarchyService) AssignTask(ctx context.Context, employeeID int, in TaskInput) models.ServiceResponse[models.Task] {
	var task models.Task
	if err := validateInput(in); err != nil {
		return respond("assign_task", task, err, "")
	}
	task = models.Task{
		EmployeeID:  employeeID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		DueDate:     in.DueDate,
		Status:      models.TaskPending,
	}
	if in.CreatedDate != nil {
		task.CreatedDate = *in.CreatedDate
	} else {
		task.CreatedDate = s.now()
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return respond("assign_task", models.Task{}, ValidationError("invalid status '%s'", *in.Status), "")
		}
		task.Status = *in.Status
	}

	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetEmployee(ctx, employeeID); err != nil {
			return notFound(err, "employee", employeeID)
		}
		var err error
		task.ID, err = tx.InsertTask(ctx, &task)
		return foreignKey(err)
	})
	if err == nil {
		logger.AuditLogger.Info("Task created successfully", zap.Int("task_id", task.ID), zap.Int("employee_id", employeeID))
		s.publish(models.TaskAssigned, task)
	}
	return respond("assign_task", task, err, "Task created successfully")
}

func (s *HierarchyService) GetTask(ctx context.Context, taskID int) models.ServiceResponse[models.Task] {
	var task models.Task
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		t, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return notFound(err, "task", taskID)
		}
		task = *t
		return nil
	})
	return respond("get_task", task, err, "Task found")
}

// UpdateTask is the full update: name, description, due date and status.
func (s *HierarchyService) UpdateTask(ctx context.Context, taskID int, in TaskUpdate) models.ServiceResponse[models.Task] {
	var task models.Task
	if err := validateInput(in); err != nil {
		return respond("update_task", task, err, "")
	}
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		cur, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return notFound(err, "task", taskID)
		}
		cur.Name = strings.TrimSpace(in.Name)
		cur.Description = in.Description
		cur.DueDate = in.DueDate
		cur.Status = in.Status
		if err := tx.UpdateTask(ctx, cur); err != nil {
			return err
		}
		task = *cur
		return nil
	})
	if err == nil {
		logger.AuditLogger.Info("Task updated", zap.Int("task_id", taskID))
		s.publish(models.TaskUpdated, task)
	}
	return respond("update_task", task, err, "Task updated successfully")
}

// UpdateTaskStatus touches the status column only.
func (s *HierarchyService) UpdateTaskStatus(ctx context.Context, taskID int, status models.TaskStatus) models.ServiceResponse[models.Task] {
	var task models.Task
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetTask(ctx, taskID); err != nil {
			return notFound(err, "task", taskID)
		}
		if !status.Valid() {
			return ValidationError("invalid status '%s'", status)
		}
		if err := tx.UpdateTaskStatus(ctx, taskID, status); err != nil {
			return err
		}
		t, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		task = *t
		return nil
	})
	if err == nil {
		logger.AuditLogger.Info("Task status updated", zap.Int("task_id", taskID), zap.String("status", string(status)))
		s.publish(models.TaskStatusChanged, task)
	}
	return respond("update_task_status", task, err, "Task status updated successfully")
}

func (s *HierarchyService) DeleteTask(ctx context.Context, taskID int) models.ServiceResponse[models.Task] {
	var task models.Task
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		t, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return notFound(err, "task", taskID)
		}
		task = *t
		return tx.DeleteTask(ctx, taskID)
	})
	if err == nil {
		logger.AuditLogger.Info("Task deleted", zap.Int("task_id", taskID))
		s.publish(models.TaskDeleted, task)
	}
	return respond("delete_task", task, err, "Task deleted successfully")
}

func (s *HierarchyService) publish(kind models.TaskEventType, task models.Task) {
	s.events.Publish(models.TaskEvent{Type: kind, Task: task, OccurredAt: s.now()})
}

func appendUnique(ids []int, id int) []int {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}
