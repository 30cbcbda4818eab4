package services

import (
	"context"
	"testing"
	"time"

	"contest-vote-backend/internal/models"
	"contest-vote-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
)

func TestUserService_TokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	s := NewUserService(store, "secret")

	pushToken := "device-abc"
	user, err := s.CreateUser(ctx, models.RoleOrganizer, &pushToken)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	claims, err := s.ValidateJWT(user.Token)
	if err != nil {
		t.Fatalf("ValidateJWT() error = %v", err)
	}
	if claims.UserID != user.ID || claims.Role != models.RoleOrganizer || !claims.IsStaff() {
		t.Errorf("claims = %+v", claims)
	}

	stored, err := store.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if stored.PushToken == nil || *stored.PushToken != pushToken {
		t.Errorf("push token = %v", stored.PushToken)
	}

	newToken := "device-xyz"
	if err := s.UpdatePushToken(ctx, user.ID, &newToken); err != nil {
		t.Fatalf("UpdatePushToken() error = %v", err)
	}
	stored, _ = store.GetUser(ctx, user.ID)
	if stored.PushToken == nil || *stored.PushToken != newToken {
		t.Errorf("push token after update = %v", stored.PushToken)
	}
}

func TestUserService_ValidateJWTRejects(t *testing.T) {
	s := NewUserService(nil, "secret")

	sign := func(claims jwt.MapClaims, method jwt.SigningMethod, key any) string {
		t.Helper()
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("SignedString() error = %v", err)
		}
		return token
	}
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", sign(jwt.MapClaims{"user_id": "u", "exp": future}, jwt.SigningMethodHS256, []byte("other"))},
		{"expired", sign(jwt.MapClaims{"user_id": "u", "exp": time.Now().Add(-time.Hour).Unix()}, jwt.SigningMethodHS256, []byte("secret"))},
		{"no user", sign(jwt.MapClaims{"exp": future}, jwt.SigningMethodHS256, []byte("secret"))},
		{"unknown role", sign(jwt.MapClaims{"user_id": "u", "role": "judge", "exp": future}, jwt.SigningMethodHS256, []byte("secret"))},
		{"none alg", sign(jwt.MapClaims{"user_id": "u", "exp": future}, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.ValidateJWT(tt.token); err == nil {
				t.Error("ValidateJWT() error = nil, want error")
			}
		})
	}
}

func TestUserService_RoleDefaultsToVoter(t *testing.T) {
	s := NewUserService(nil, "secret")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "legacy",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	claims, err := s.ValidateJWT(token)
	if err != nil {
		t.Fatalf("ValidateJWT() error = %v", err)
	}
	if claims.Role != models.RoleVoter || claims.IsStaff() {
		t.Errorf("claims = %+v, want voter", claims)
	}
}
