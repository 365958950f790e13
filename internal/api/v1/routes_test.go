package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgdirectory/internal/api/v1/handlers"
	"orgdirectory/internal/middleware"
	"orgdirectory/internal/repository"
	"orgdirectory/internal/service"
	"orgdirectory/pkg/crypto"
)

type captureNotifier struct {
	mu    sync.Mutex
	codes map[string]string
}

func (n *captureNotifier) Notify(_ context.Context, email, code string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes[email] = code
	return nil
}

func (n *captureNotifier) code(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[email]
}

type testApp struct {
	app        *fiber.App
	notifier   *captureNotifier
	adminToken string
}

func CreateTestApp(t *testing.T) *testApp {
	t.Helper()
	store := repository.NewMemoryStore()
	notifier := &captureNotifier{codes: map[string]string{}}
	identity := service.NewIdentityService(store, notifier, crypto.DefaultOtpPolicy(), "test-key")
	hierarchy := service.NewHierarchyService(store)

	require.True(t, identity.SeedAdmin(context.Background(), "admin", "admin@org.test", "admin123").Success)

	app := fiber.New()
	app.Use(middleware.ErrorHandler())
	RegisterRoutes(app, handlers.New(identity, hierarchy, time.Hour, 5*time.Second), nil)

	ta := &testApp{app: app, notifier: notifier}
	ta.adminToken = ta.login(t, "admin", "admin123")
	return ta
}

// do sends a JSON request and decodes the envelope.
func (ta *testApp) do(t *testing.T, method, path, token string, body any) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return resp.StatusCode, result
}

func (ta *testApp) login(t *testing.T, username, password string) string {
	t.Helper()
	status, result := ta.do(t, "POST", "/api/v1/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status, result["message"])
	token := result["data"].(map[string]interface{})["token"].(string)
	require.NotEmpty(t, token)
	return token
}

// registerVerified registers username, verifies it with the captured code
// and returns its id and token.
func (ta *testApp) registerVerified(t *testing.T, username string) (int, string) {
	t.Helper()
	email := username + "@example.com"
	status, result := ta.do(t, "POST", "/api/v1/register", "", map[string]string{
		"username": username,
		"email":    email,
		"password": "password1",
	})
	require.Equal(t, http.StatusCreated, status, result["message"])
	id := int(result["data"].(map[string]interface{})["id"].(float64))

	status, result = ta.do(t, "POST", "/api/v1/otp/verify", "", map[string]interface{}{
		"user_id": id,
		"code":    ta.notifier.code(email),
	})
	require.Equal(t, http.StatusOK, status, result["message"])
	return id, ta.login(t, username, "password1")
}

// create posts body and returns the id of the created row.
func (ta *testApp) create(t *testing.T, path, token string, body any) int {
	t.Helper()
	status, result := ta.do(t, "POST", path, token, body)
	return createdID(t, status, result)
}

func createdID(t *testing.T, status int, result map[string]interface{}) int {
	t.Helper()
	require.Equal(t, http.StatusCreated, status, result["message"])
	return int(result["data"].(map[string]interface{})["id"].(float64))
}

// TestRegisterVerifyLogin walks the whole sign-up flow over HTTP.
func TestRegisterVerifyLogin(t *testing.T) {
	ta := CreateTestApp(t)

	status, result := ta.do(t, "POST", "/api/v1/register", "", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "password1",
	})
	id := createdID(t, status, result)
	assert.Equal(t, "Employee", result["data"].(map[string]interface{})["role"])
	assert.Equal(t, false, result["data"].(map[string]interface{})["is_verified"])

	status, _ = ta.do(t, "POST", "/api/v1/login", "", map[string]string{"username": "alice", "password": "password1"})
	assert.Equal(t, http.StatusUnauthorized, status)

	code := ta.notifier.code("alice@example.com")
	wrong := "000000"
	if code == wrong {
		wrong = "999999"
	}
	status, _ = ta.do(t, "POST", "/api/v1/otp/verify", "", map[string]interface{}{"user_id": id, "code": wrong})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ta.do(t, "POST", "/api/v1/otp/verify", "", map[string]interface{}{"user_id": id, "code": code})
	assert.Equal(t, http.StatusOK, status)

	status, _ = ta.do(t, "POST", "/api/v1/otp/verify", "", map[string]interface{}{"user_id": id, "code": code})
	assert.Equal(t, http.StatusConflict, status)

	token := ta.login(t, "alice", "password1")
	status, result = ta.do(t, "GET", fmt.Sprintf("/api/v1/users/%d", id), token, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice@example.com", result["data"].(map[string]interface{})["email"])

	status, _ = ta.do(t, "GET", "/api/v1/users/1", token, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = ta.do(t, "GET", fmt.Sprintf("/api/v1/users/%d", id), ta.adminToken, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestLoginInvalidCredentials(t *testing.T) {
	ta := CreateTestApp(t)

	status, unknown := ta.do(t, "POST", "/api/v1/login", "", map[string]string{"username": "ghost", "password": "whatever"})
	assert.Equal(t, http.StatusUnauthorized, status)
	status, wrong := ta.do(t, "POST", "/api/v1/login", "", map[string]string{"username": "admin", "password": "whatever"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, unknown["message"], wrong["message"])

	status, _ = ta.do(t, "POST", "/api/v1/login", "", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestResendOtpRateLimit(t *testing.T) {
	ta := CreateTestApp(t)
	status, result := ta.do(t, "POST", "/api/v1/register", "", map[string]string{
		"username": "bob",
		"email":    "bob@example.com",
		"password": "password1",
	})
	id := createdID(t, status, result)

	for i := 0; i < crypto.MaxOtpResends; i++ {
		status, _ = ta.do(t, "POST", "/api/v1/otp/resend", "", map[string]interface{}{"user_id": id})
		require.Equal(t, http.StatusOK, status)
	}
	status, _ = ta.do(t, "POST", "/api/v1/otp/resend", "", map[string]interface{}{"user_id": id})
	assert.Equal(t, http.StatusTooManyRequests, status)

	status, _ = ta.do(t, "POST", fmt.Sprintf("/api/v1/users/%d/otp/reset", id), ta.adminToken, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = ta.do(t, "POST", "/api/v1/otp/resend", "", map[string]interface{}{"user_id": id})
	assert.Equal(t, http.StatusOK, status)
}

func TestHierarchyEndpoints(t *testing.T) {
	ta := CreateTestApp(t)
	admin := ta.adminToken

	deptID := ta.create(t, "/api/v1/departments", admin, map[string]string{"name": "Engineering"})
	mgrID := ta.create(t, "/api/v1/managers", admin, map[string]interface{}{
		"name": "Mia", "age": 45, "salary": 9000, "is_appointed": true, "department_id": deptID,
	})
	empID := ta.create(t, "/api/v1/employees", admin, map[string]interface{}{
		"name": "Ann", "age": 30, "salary": 100, "manager_id": mgrID,
	})

	status, _ := ta.do(t, "POST", "/api/v1/employees", admin, map[string]interface{}{"name": "Bad", "department_id": 999})
	assert.Equal(t, http.StatusBadRequest, status)

	status, result := ta.do(t, "GET", fmt.Sprintf("/api/v1/employees/%d", empID), admin, nil)
	require.Equal(t, http.StatusOK, status, result["message"])
	view := result["data"].(map[string]interface{})
	assert.Equal(t, "Mia", view["manager_name"])
	assert.Equal(t, "Engineering", view["department_name"])

	taskID := ta.create(t, fmt.Sprintf("/api/v1/employees/%d/tasks", empID), admin, map[string]interface{}{
		"name": "Write report", "description": "Q1",
	})

	status, result = ta.do(t, "PUT", fmt.Sprintf("/api/v1/tasks/%d/status", taskID), admin, map[string]string{"status": "Done"})
	require.Equal(t, http.StatusOK, status, result["message"])
	assert.Equal(t, "Done", result["data"].(map[string]interface{})["status"])
	assert.Equal(t, "Write report", result["data"].(map[string]interface{})["name"])

	status, _ = ta.do(t, "PUT", fmt.Sprintf("/api/v1/tasks/%d/status", taskID), admin, map[string]string{"status": "Paused"})
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = ta.do(t, "PUT", "/api/v1/tasks/404/status", admin, map[string]string{"status": "Paused"})
	assert.Equal(t, http.StatusNotFound, status)

	status, result = ta.do(t, "GET", fmt.Sprintf("/api/v1/managers/%d/employees", mgrID), admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, result["data"], 1)

	status, result = ta.do(t, "DELETE", fmt.Sprintf("/api/v1/managers/%d", mgrID), admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []interface{}{float64(empID)}, result["data"].(map[string]interface{})["detached_employees"])

	status, result = ta.do(t, "DELETE", fmt.Sprintf("/api/v1/employees/%d", empID), admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, result["data"].(map[string]interface{})["deleted_tasks"], 1)

	status, _ = ta.do(t, "GET", fmt.Sprintf("/api/v1/tasks/%d", taskID), admin, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ta.do(t, "DELETE", fmt.Sprintf("/api/v1/departments/%d", deptID), admin, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestRoleGate(t *testing.T) {
	ta := CreateTestApp(t)
	_, employeeToken := ta.registerVerified(t, "carol")

	status, _ := ta.do(t, "POST", "/api/v1/departments", employeeToken, map[string]string{"name": "Sales"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = ta.do(t, "GET", "/api/v1/employees/1", employeeToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = ta.do(t, "POST", "/api/v1/departments", "", map[string]string{"name": "Sales"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = ta.do(t, "GET", "/api/v1/employees/abc", ta.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSelfRegisterCannotClaimAdmin(t *testing.T) {
	ta := CreateTestApp(t)

	for _, role := range []string{"Admin", "Manager"} {
		status, result := ta.do(t, "POST", "/api/v1/register", "", map[string]string{
			"username": "mallory",
			"email":    "mallory@example.com",
			"password": "password1",
			"role":     role,
		})
		assert.Equal(t, http.StatusBadRequest, status, role)
		assert.Equal(t, false, result["success"])
	}
	assert.Empty(t, ta.notifier.code("mallory@example.com"))

	status, _ := ta.do(t, "POST", "/api/v1/login", "", map[string]string{"username": "mallory", "password": "password1"})
	assert.Equal(t, http.StatusUnauthorized, status)

	// The only self-service path left is an Employee account.
	_, token := ta.registerVerified(t, "mallory")
	status, _ = ta.do(t, "POST", "/api/v1/departments", token, map[string]string{"name": "Ops"})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestAdminCreatesPrivilegedUser(t *testing.T) {
	ta := CreateTestApp(t)
	_, employeeToken := ta.registerVerified(t, "carol")

	body := map[string]string{
		"username": "dave",
		"email":    "dave@example.com",
		"password": "password1",
		"role":     "Admin",
	}
	status, _ := ta.do(t, "POST", "/api/v1/users", "", body)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = ta.do(t, "POST", "/api/v1/users", employeeToken, body)
	assert.Equal(t, http.StatusForbidden, status)

	status, result := ta.do(t, "POST", "/api/v1/users", ta.adminToken, body)
	id := createdID(t, status, result)
	assert.Equal(t, "Admin", result["data"].(map[string]interface{})["role"])

	status, _ = ta.do(t, "POST", "/api/v1/otp/verify", "", map[string]interface{}{
		"user_id": id,
		"code":    ta.notifier.code("dave@example.com"),
	})
	require.Equal(t, http.StatusOK, status)
	token := ta.login(t, "dave", "password1")
	ta.create(t, "/api/v1/departments", token, map[string]string{"name": "Ops"})
}

func TestVerifyOtpAttemptLimit(t *testing.T) {
	ta := CreateTestApp(t)
	status, result := ta.do(t, "POST", "/api/v1/register", "", map[string]string{
		"username": "erin",
		"email":    "erin@example.com",
		"password": "password1",
	})
	id := createdID(t, status, result)
	code := ta.notifier.code("erin@example.com")
	wrong := "000000"
	if code == wrong {
		wrong = "999999"
	}

	for i := 0; i < crypto.MaxOtpAttempts; i++ {
		status, _ = ta.do(t, "POST", "/api/v1/otp/verify", "", map[string]interface{}{"user_id": id, "code": wrong})
		require.Equal(t, http.StatusBadRequest, status)
	}
	status, _ = ta.do(t, "POST", "/api/v1/otp/verify", "", map[string]interface{}{"user_id": id, "code": code})
	assert.Equal(t, http.StatusTooManyRequests, status)
}
