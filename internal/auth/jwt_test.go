package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/pkg/types"
)

func TestGenerateAndParse(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	user := &types.User{ID: "t1", Role: types.RoleTeacher}

	token, err := m.Generate(user)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.Subject != "t1" || claims.Role != types.RoleTeacher {
		t.Errorf("unexpected claims: subject=%q role=%q", claims.Subject, claims.Role)
	}
}

func TestParseRejectsBadTokens(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	other := NewManager("other-secret", time.Hour)
	expired := NewManager("test-secret", -time.Minute)

	wrongKey, _ := other.Generate(&types.User{ID: "s1", Role: types.RoleStudent})
	expiredToken, _ := expired.Generate(&types.User{ID: "s1", Role: types.RoleStudent})
	badRole, _ := m.Generate(&types.User{ID: "s1", Role: "admin"})
	noSubject, _ := m.Generate(&types.User{Role: types.RoleStudent})

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"empty", "", ErrMissingToken},
		{"garbage", "not.a.token", ErrInvalidToken},
		{"wrong key", wrongKey, ErrInvalidToken},
		{"expired", expiredToken, ErrInvalidToken},
		{"unknown role", badRole, ErrInvalidToken},
		{"no subject", noSubject, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Parse(tt.token); !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"bearer header", "Bearer abc123", "", "abc123"},
		{"raw header", "abc123", "", "abc123"},
		{"query fallback", "", "qtoken", "qtoken"},
		{"header wins over query", "htoken", "qtoken", "htoken"},
		{"nothing", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			url := "/ws"
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			c.Request = httptest.NewRequest("GET", url, nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			if got := TokenFromRequest(c); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
