package services

import (
	"context"
	"fmt"
	"time"

	"contest-vote-backend/internal/models"
	"contest-vote-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const jwtExpDays = 365

// Claims identifies the caller of an authenticated request
type Claims struct {
	UserID string
	Role   models.Role
}

// IsStaff reports whether the caller may moderate contests
func (c Claims) IsStaff() bool {
	return c.Role == models.RoleOrganizer || c.Role == models.RoleAdmin
}

// UserService handles identities and tokens
type UserService struct {
	store     repository.Store
	jwtSecret string
}

// NewUserService creates a new user service
func NewUserService(store repository.Store, jwtSecret string) *UserService {
	return &UserService{
		store:     store,
		jwtSecret: jwtSecret,
	}
}

// GenerateJWT generates a JWT token for a user
func (s *UserService) GenerateJWT(userID string, role models.Role) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    string(role),
		"exp":     time.Now().AddDate(0, 0, jwtExpDays).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT validates a JWT token and returns the caller's claims
func (s *UserService) ValidateJWT(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, fmt.Errorf("user_id not found in token")
	}

	role := models.RoleVoter
	if r, ok := claims["role"].(string); ok && r != "" {
		role = models.Role(r)
	}
	switch role {
	case models.RoleVoter, models.RoleOrganizer, models.RoleAdmin:
	default:
		return nil, fmt.Errorf("unknown role %q in token", role)
	}

	return &Claims{UserID: userID, Role: role}, nil
}

// CreateUser registers a new user with the given role and issues its token
func (s *UserService) CreateUser(ctx context.Context, role models.Role, pushToken *string) (*models.User, error) {
	user := &models.User{
		ID:        uuid.New().String(),
		Role:      role,
		PushToken: pushToken,
		CreatedAt: time.Now(),
	}

	token, err := s.GenerateJWT(user.ID, role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	user.Token = token

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// UpdatePushToken sets the device token used for winner notifications
func (s *UserService) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	return s.store.UpdatePushToken(ctx, userID, pushToken)
}
