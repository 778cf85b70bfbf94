package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/joao-fontenele/parashop/internal/domain"
)

const testUserID = "5f0c2b7e-1d3a-4e8b-9c6d-2a1b3c4d5e6f"

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		role     string
		wantOK   bool
		wantRole domain.Role
	}{
		{"no headers", "", "", false, ""},
		{"defaults to client", testUserID, "", true, domain.RoleClient},
		{"admin", testUserID, "ADMIN", true, domain.RoleAdmin},
		{"malformed user id", "u-1", "ADMIN", false, ""},
		{"uppercase user id", "5F0C2B7E-1D3A-4E8B-9C6D-2A1B3C4D5E6F", "", true, domain.RoleClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got domain.Actor
			var ok bool
			h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, ok = ActorFrom(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.userID != "" {
				req.Header.Set(HeaderUserID, tt.userID)
			}
			if tt.role != "" {
				req.Header.Set(HeaderRole, tt.role)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if ok && got.Role != tt.wantRole {
				t.Errorf("expected role %s, got %s", tt.wantRole, got.Role)
			}
			if ok && got.UserID != testUserID {
				t.Errorf("expected user id %s, got %s", testUserID, got.UserID)
			}
		})
	}
}

func TestRequire(t *testing.T) {
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }

	tests := []struct {
		name   string
		actor  *domain.Actor
		roles  []domain.Role
		status int
	}{
		{"anonymous", nil, nil, http.StatusUnauthorized},
		{"any authenticated", &domain.Actor{UserID: "u", Role: domain.RoleClient}, nil, http.StatusNoContent},
		{"wrong role", &domain.Actor{UserID: "u", Role: domain.RoleClient}, []domain.Role{domain.RoleAdmin}, http.StatusForbidden},
		{"one of roles", &domain.Actor{UserID: "u", Role: domain.RoleEmployee}, []domain.Role{domain.RoleAdmin, domain.RoleEmployee}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.actor != nil {
				req = req.WithContext(WithActor(req.Context(), *tt.actor))
			}
			rec := httptest.NewRecorder()

			Require(ok, tt.roles...)(rec, req)

			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestRequire_MalformedUserIDHeader(t *testing.T) {
	h := Middleware(Require(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for a malformed user id")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "not-a-uuid")
	req.Header.Set(HeaderRole, string(domain.RoleAdmin))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}
