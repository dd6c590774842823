package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"fullsound/internal/apperr"
	"fullsound/internal/auth"
	"fullsound/internal/models"
	"fullsound/internal/store"
	"fullsound/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthService registers accounts and issues access tokens
type AuthService struct {
	store      store.Repository
	tokens     *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(store store.Repository, tokens *auth.TokenManager) *AuthService {
	return &AuthService{
		store:      store,
		tokens:     tokens,
		bcryptCost: bcrypt.DefaultCost,
		logger:     util.GetLogger(),
	}
}

// RegisterRequest represents a sign-up
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is an issued access token
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Register creates a customer account
func (as *AuthService) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if len(username) < 3 {
		return nil, apperr.Validation("username must have at least 3 characters")
	}
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return nil, apperr.Validation("email is invalid")
	}
	if len(req.Password) < 8 {
		return nil, apperr.Validation("password must have at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), as.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleCustomer,
	}
	if err := as.store.CreateUser(ctx, user); err != nil {
		switch {
		case store.IsUniqueViolation(err, store.ConstraintUsername):
			return nil, apperr.Conflict("username %s is already registered", username)
		case store.IsUniqueViolation(err, store.ConstraintUserEmail):
			return nil, apperr.Conflict("email %s is already registered", email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	as.logger.Info("User registered", zap.Int64("user_id", user.ID))
	return user, nil
}

// Login checks credentials given as username or email and issues a token
func (as *AuthService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, apperr.Validation("username and password are required")
	}

	user, err := as.store.GetUserByLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Unauthenticated("invalid credentials")
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Unauthenticated("invalid credentials")
	}

	token, expires, err := as.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &LoginResult{Token: token, ExpiresAt: expires, User: user}, nil
}
