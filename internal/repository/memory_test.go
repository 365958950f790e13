package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgdirectory/internal/models"
)

func TestMemoryStoreRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.InsertDepartment(ctx, &models.Department{Name: "R&D"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.WithTx(ctx, func(tx Tx) error {
		_, err := tx.GetDepartment(ctx, 1)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRollsBackOnCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	err := store.WithTx(ctx, func(tx Tx) error {
		_, err := tx.InsertDepartment(ctx, &models.Department{Name: "Ops"})
		cancel()
		return err
	})
	require.ErrorIs(t, err, context.Canceled)

	err = store.WithTx(context.Background(), func(tx Tx) error {
		_, err := tx.GetDepartment(context.Background(), 1)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreUniqueUsers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	insert := func(username, email string) error {
		return store.WithTx(ctx, func(tx Tx) error {
			_, err := tx.InsertUser(ctx, &models.User{Username: username, Email: email, Role: models.RoleEmployee})
			return err
		})
	}
	require.NoError(t, insert("alice", "alice@x.com"))
	assert.ErrorIs(t, insert("alice", "other@x.com"), ErrConflict)
	assert.ErrorIs(t, insert("bob", "ALICE@x.com"), ErrConflict)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	mgr := 1

	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		_, err := tx.InsertEmployee(ctx, &models.Employee{Name: "Ann", ManagerID: &mgr})
		return err
	}))

	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		e, err := tx.GetEmployee(ctx, 1)
		if err != nil {
			return err
		}
		*e.ManagerID = 99
		return nil
	}))

	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		e, err := tx.GetEmployee(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, *e.ManagerID)
		return nil
	}))
}

func TestMemoryStoreFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m1, m2 := 1, 2

	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		for _, e := range []models.Employee{
			{Name: "a", ManagerID: &m1},
			{Name: "b", ManagerID: &m2},
			{Name: "c", ManagerID: &m1},
			{Name: "d"},
		} {
			if _, err := tx.InsertEmployee(ctx, &e); err != nil {
				return err
			}
		}
		_, err := tx.InsertTask(ctx, &models.Task{EmployeeID: 3, Name: "t", Status: models.TaskPending})
		return err
	}))

	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		emps, err := tx.ListEmployees(ctx, EmployeeFilter{ManagerID: &m1})
		require.NoError(t, err)
		require.Len(t, emps, 2)
		assert.Equal(t, "a", emps[0].Name)
		assert.Equal(t, "c", emps[1].Name)

		all, err := tx.ListEmployees(ctx, EmployeeFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 4)

		emp := 3
		tasks, err := tx.ListTasks(ctx, TaskFilter{EmployeeID: &emp})
		require.NoError(t, err)
		assert.Len(t, tasks, 1)
		return nil
	}))
}
