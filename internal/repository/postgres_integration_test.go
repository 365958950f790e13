package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgdirectory/configs"
	"orgdirectory/internal/models"
	"orgdirectory/pkg/database"
)

// startPostgres uses the DB_NAME_TEST database when one is configured and
// otherwise boots a throwaway container. It skips when neither is reachable.
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test")
	}
	if cfg := configs.LoadConfig(); cfg.DBHost != "" && cfg.DBNameTest != "" {
		return connectTestDB(t, cfg)
	}
	if os.Getenv("SKIP_DOCKER_TESTS") != "" {
		t.Skip("skipping postgres integration test")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("Could not construct docker pool: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("Could not connect to Docker: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=org",
			"POSTGRES_PASSWORD=secret",
			"POSTGRES_DB=orgdirectory_test",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err, "Could not start postgres")
	t.Cleanup(func() { _ = pool.Purge(resource) })
	_ = resource.Expire(120)

	dsn := fmt.Sprintf("host=localhost port=%s user=org password=secret dbname=orgdirectory_test sslmode=disable",
		resource.GetPort("5432/tcp"))

	var db *sql.DB
	pool.MaxWait = 60 * time.Second
	err = pool.Retry(func() error {
		var err error
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return err
		}
		return db.Ping()
	})
	require.NoError(t, err, "Could not connect to postgres")
	t.Cleanup(func() { db.Close() })

	require.NoError(t, CreateTableIfNotExists(db))
	return db
}

func connectTestDB(t *testing.T, cfg configs.Config) *sql.DB {
	t.Helper()
	db, err := sql.Open("postgres", database.DSN(cfg, cfg.DBNameTest))
	require.NoError(t, err)
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("Could not connect to test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Start from empty tables on a shared database.
	require.NoError(t, DeleteAllTable(db))
	require.NoError(t, CreateTableIfNotExists(db))
	return db
}

func TestPostgresIntegrationCascades(t *testing.T) {
	db := startPostgres(t)
	store := NewPostgresStore(db)
	ctx := context.Background()

	var deptID, mgrID, empID int
	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		var err error
		if deptID, err = tx.InsertDepartment(ctx, &models.Department{Name: "Engineering"}); err != nil {
			return err
		}
		if mgrID, err = tx.InsertManager(ctx, &models.Manager{Name: "Mia", Age: 40, Salary: 10, DepartmentID: deptID}); err != nil {
			return err
		}
		if empID, err = tx.InsertEmployee(ctx, &models.Employee{Name: "Ann", Age: 30, DepartmentID: &deptID, ManagerID: &mgrID}); err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			if _, err = tx.InsertTask(ctx, &models.Task{EmployeeID: empID, Name: "t", CreatedDate: time.Now(), Status: models.TaskPending}); err != nil {
				return err
			}
		}
		return nil
	}))

	// Department delete: managers cascade, employee keeps its row with references cleared.
	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		return tx.DeleteDepartment(ctx, deptID)
	}))
	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		_, err := tx.GetManager(ctx, mgrID)
		assert.ErrorIs(t, err, ErrNotFound)

		e, err := tx.GetEmployee(ctx, empID)
		require.NoError(t, err)
		assert.Nil(t, e.ManagerID)
		assert.Nil(t, e.DepartmentID)
		return nil
	}))

	// Employee delete cascades to tasks.
	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		return tx.DeleteEmployee(ctx, empID)
	}))
	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		tasks, err := tx.ListTasks(ctx, TaskFilter{EmployeeID: &empID})
		require.NoError(t, err)
		assert.Empty(t, tasks)
		return nil
	}))
}

func TestPostgresIntegrationUniqueUser(t *testing.T) {
	db := startPostgres(t)
	store := NewPostgresStore(db)
	ctx := context.Background()

	insert := func(username, email string) error {
		return store.WithTx(ctx, func(tx Tx) error {
			_, err := tx.InsertUser(ctx, &models.User{
				Username: username, Email: email, Role: models.RoleEmployee,
				PasswordHash: []byte("h"), PasswordSalt: []byte("s"),
			})
			return err
		})
	}
	require.NoError(t, insert("alice", "alice@x.com"))
	assert.ErrorIs(t, insert("alice", "alice2@x.com"), ErrConflict)

	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		u, err := tx.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, u.IsVerified)
		assert.Nil(t, u.Otp)

		otp := "sealed"
		exp := time.Now().Add(time.Minute)
		u.Otp, u.OtpExpiration, u.OtpResendCount = &otp, &exp, 1
		return tx.UpdateUser(ctx, u)
	}))

	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		u, err := tx.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, u.Otp)
		assert.Equal(t, 1, u.OtpResendCount)
		return nil
	}))
}

var errTaken = errors.New("username or email taken")

// runConcurrently starts n workers at once and collects their errors.
func runConcurrently(n int, work func(i int) error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = work(i)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func TestPostgresIntegrationConcurrentRegister(t *testing.T) {
	db := startPostgres(t)
	store := NewPostgresStore(db)
	store.maxAttempts = 20
	ctx := context.Background()

	// Same check-then-insert shape as registration.
	errs := runConcurrently(8, func(i int) error {
		return store.WithTx(ctx, func(tx Tx) error {
			email := fmt.Sprintf("racer%d@x.com", i)
			exists, err := tx.UserExists(ctx, "racer", email)
			if err != nil {
				return err
			}
			if exists {
				return errTaken
			}
			_, err = tx.InsertUser(ctx, &models.User{
				Username: "racer", Email: email, Role: models.RoleEmployee,
				PasswordHash: []byte("h"), PasswordSalt: []byte("s"),
			})
			return err
		})
	})

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, errTaken) || errors.Is(err, ErrConflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users WHERE username = 'racer'`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestPostgresIntegrationConcurrentVerify(t *testing.T) {
	db := startPostgres(t)
	store := NewPostgresStore(db)
	store.maxAttempts = 20
	ctx := context.Background()

	var id int
	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		otp := "sealed"
		exp := time.Now().Add(time.Minute)
		var err error
		id, err = tx.InsertUser(ctx, &models.User{
			Username: "verifier", Email: "verifier@x.com", Role: models.RoleEmployee,
			PasswordHash: []byte("h"), PasswordSalt: []byte("s"),
			Otp: &otp, OtpExpiration: &exp,
		})
		return err
	}))

	errAlreadyVerified := errors.New("already verified")
	errs := runConcurrently(8, func(int) error {
		return store.WithTx(ctx, func(tx Tx) error {
			u, err := tx.GetUser(ctx, id, true)
			if err != nil {
				return err
			}
			if u.IsVerified {
				return errAlreadyVerified
			}
			u.IsVerified, u.Otp, u.OtpExpiration = true, nil, nil
			return tx.UpdateUser(ctx, u)
		})
	})

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, errAlreadyVerified)
	}
	assert.Equal(t, 1, succeeded)
}
