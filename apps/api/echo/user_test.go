package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/durusapp/durus/core/user"
)

func Test_userApi_login(t *testing.T) {
	app := newTestApp(t)

	app.createUser(t, "Student", "student1", "student@test.cd", "LePassword", []string{user.RoleStudent}, true)
	app.createUser(t, "Gone", "gone01", "gone@test.cd", "LePassword", []string{user.RoleStudent}, false)

	tests := []struct {
		name     string
		body     LoginRequest
		wantCode int
	}{
		{"valid credentials", LoginRequest{Username: "student1", Password: "LePassword"}, http.StatusOK},
		{"login by email", LoginRequest{Username: "student@test.cd", Password: "LePassword"}, http.StatusOK},
		{"wrong password", LoginRequest{Username: "student1", Password: "nope"}, http.StatusBadRequest},
		{"unknown user", LoginRequest{Username: "whodis", Password: "LePassword"}, http.StatusBadRequest},
		{"deactivated account", LoginRequest{Username: "gone01", Password: "LePassword"}, http.StatusForbidden},
		{"missing fields", LoginRequest{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.request(t, http.MethodPost, "/v1/users/login", "", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %v; want %v (body: %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode == http.StatusOK {
				var resp LoginResponse
				decodeBody(t, rec, &resp)
				if resp.Token == "" {
					t.Error("empty token in login response")
				}
			}
		})
	}
}

func Test_userApi_query_requiresAdmin(t *testing.T) {
	app := newTestApp(t)

	admin := app.createUser(t, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	student := app.createUser(t, "Student", "student1", "student@test.cd", "", []string{user.RoleStudent}, true)

	rec := app.request(t, http.MethodGet, "/v1/users", app.getToken(t, student), nil)
	checkCode(t, rec, http.StatusForbidden)

	rec = app.request(t, http.MethodGet, "/v1/users", app.getToken(t, admin), nil)
	checkCode(t, rec, http.StatusOK)

	var users []user.User
	decodeBody(t, rec, &users)
	unames := make([]string, 0, len(users))
	for _, u := range users {
		unames = append(unames, u.Username)
	}
	assert.ElementsMatch(t, []string{admin.Username, student.Username}, unames)

	rec = app.request(t, http.MethodGet, "/v1/users", "", nil)
	checkCode(t, rec, http.StatusUnauthorized) // missing jwt
}

func Test_userApi_retrieve_ownOrAdmin(t *testing.T) {
	app := newTestApp(t)

	admin := app.createUser(t, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	usr1 := app.createUser(t, "One", "student1", "one@test.cd", "", []string{user.RoleStudent}, true)
	usr2 := app.createUser(t, "Two", "student2", "two@test.cd", "", []string{user.RoleStudent}, true)

	// a student can fetch themselves
	rec := app.request(t, http.MethodGet, "/v1/users/"+usr1.ID, app.getToken(t, usr1), nil)
	checkCode(t, rec, http.StatusOK)

	// but not their peers
	rec = app.request(t, http.MethodGet, "/v1/users/"+usr2.ID, app.getToken(t, usr1), nil)
	checkCode(t, rec, http.StatusNotFound)

	// admin can fetch anyone
	rec = app.request(t, http.MethodGet, "/v1/users/"+usr2.ID, app.getToken(t, admin), nil)
	checkCode(t, rec, http.StatusOK)
}

func Test_userApi_register(t *testing.T) {
	app := newTestApp(t)

	admin := app.createUser(t, "Admin", "admin1", "admin@test.cd", "", []string{user.RoleAdmin}, true)

	body := user.NewUser{
		Name:            "New Student",
		Username:        "student9",
		Email:           "nine@test.cd",
		Password:        "LePassword",
		PasswordConfirm: "LePassword",
		Roles:           []string{user.RoleStudent},
	}
	rec := app.request(t, http.MethodPost, "/v1/users/register", app.getToken(t, admin), body)
	checkCode(t, rec, http.StatusCreated)

	var created user.User
	decodeBody(t, rec, &created)
	if created.Username != "student9" {
		t.Errorf("Username = %q; want %q", created.Username, "student9")
	}

	// duplicate email is a validation error
	body.Username = "student10"
	rec = app.request(t, http.MethodPost, "/v1/users/register", app.getToken(t, admin), body)
	checkCode(t, rec, http.StatusBadRequest)
}
