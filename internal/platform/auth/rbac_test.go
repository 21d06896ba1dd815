package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithRoles(roles ...string) context.Context {
	return context.WithValue(context.Background(), UserRolesKey, roles)
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		has      []string
		required []string
		allowed  bool
	}{
		{"matching role", []string{RoleStaff}, []string{RoleStaff}, true},
		{"one of several", []string{RolePatient}, []string{RoleStaff, RolePatient}, true},
		{"admin bypass", []string{RoleAdmin}, []string{RoleStaff}, true},
		{"wrong role", []string{RolePatient}, []string{RoleStaff}, false},
		{"no roles", nil, []string{RolePatient}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(contextWithRoles(tt.has...))
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			h := RequireRole(tt.required...)(func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			})
			err := h(c)

			if tt.allowed {
				if err != nil {
					t.Fatalf("expected access, got %v", err)
				}
				return
			}
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected echo.HTTPError, got %T", err)
			}
			if httpErr.Code != http.StatusForbidden {
				t.Errorf("expected 403, got %d", httpErr.Code)
			}
		})
	}
}

func TestIsAdmin(t *testing.T) {
	if !IsAdmin(contextWithRoles(RoleStaff, RoleAdmin)) {
		t.Error("expected admin")
	}
	if IsAdmin(contextWithRoles(RoleStaff)) {
		t.Error("staff is not admin")
	}
	if IsAdmin(context.Background()) {
		t.Error("empty context is not admin")
	}
}

func TestUserIDFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), UserIDKey, "user-123")
	if uid := UserIDFromContext(ctx); uid != "user-123" {
		t.Errorf("expected user-123, got %s", uid)
	}
	if empty := UserIDFromContext(context.Background()); empty != "" {
		t.Errorf("expected empty string, got %s", empty)
	}
}
