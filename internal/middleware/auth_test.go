package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"contest-vote-backend/internal/models"
	"contest-vote-backend/internal/repository"
	"contest-vote-backend/internal/services"
)

func TestAuthMiddleware(t *testing.T) {
	users := services.NewUserService(repository.NewMemoryStore(), "test-secret")
	token, err := users.GenerateJWT("user-1", models.RoleOrganizer)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	foreign, err := services.NewUserService(nil, "other-secret").GenerateJWT("user-1", models.RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	var seen services.Claims
	h := AuthMiddleware(users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetClaims(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"bad signature", "Bearer " + foreign, http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("got %d, want %d", rec.Code, tt.want)
			}
		})
	}

	if seen.UserID != "user-1" || seen.Role != models.RoleOrganizer {
		t.Errorf("claims = %+v", seen)
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(models.RoleOrganizer, models.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		claims *services.Claims
		want   int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"voter", &services.Claims{UserID: "u", Role: models.RoleVoter}, http.StatusForbidden},
		{"organizer", &services.Claims{UserID: "u", Role: models.RoleOrganizer}, http.StatusOK},
		{"admin", &services.Claims{UserID: "u", Role: models.RoleAdmin}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.claims != nil {
				req = req.WithContext(WithClaims(req.Context(), *tt.claims))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("got %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
