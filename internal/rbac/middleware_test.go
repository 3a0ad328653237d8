package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/auth"

	"github.com/gin-gonic/gin"
)

func doRequest(t *testing.T, role string, mw gin.HandlerFunc) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if role != "" {
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "u1", role))
		}
		c.Next()
	})
	r.GET("/x", mw, func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireAnyRole(t *testing.T) {
	tests := []struct {
		name    string
		role    string
		allowed []string
		want    int
	}{
		{"allowed role", RoleUser, []string{RoleUser}, http.StatusOK},
		{"creator allowed", RoleCreator, []string{RoleUser, RoleCreator}, http.StatusOK},
		{"admin bypasses", RoleAdmin, []string{RoleUser}, http.StatusOK},
		{"wrong role", RoleCreator, []string{RoleUser}, http.StatusForbidden},
		{"missing role", "", []string{RoleUser}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := doRequest(t, tt.role, RequireAnyRole(tt.allowed...)); got != tt.want {
				t.Fatalf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	if got := doRequest(t, RoleAdmin, RequireAdmin()); got != http.StatusOK {
		t.Fatalf("admin status = %d", got)
	}
	if got := doRequest(t, RoleUser, RequireAdmin()); got != http.StatusForbidden {
		t.Fatalf("user status = %d", got)
	}
}
