package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"
	"github.com/diagnosis/parkspot/internal/domain"
	"github.com/diagnosis/parkspot/internal/platform/clock"
	"github.com/diagnosis/parkspot/internal/repo"
	"github.com/diagnosis/parkspot/pkg/auth"
	"github.com/diagnosis/parkspot/pkg/config"
	"github.com/diagnosis/parkspot/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const RegisteredMessage = "User has been created."

type AuthService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) error
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error)
	ResolveSession(ctx context.Context, token string) (Caller, error)
}

type authService struct {
	users  repo.UserRepository
	cfg    config.AuthConfig
	clock  clock.Clock
	params *argon2id.Params
}

func NewAuthService(users repo.UserRepository, cfg config.AuthConfig, clk clock.Clock) AuthService {
	return &authService{users: users, cfg: cfg, clock: clk, params: argon2id.DefaultParams}
}

func (s *authService) Register(ctx context.Context, req *domain.RegisterRequest) error {
	req.Normalize()
	if err := domain.Validate(req); err != nil {
		return err
	}

	existing, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if existing != nil {
		return domain.ConflictError("Username already exists")
	}
	existing, err = s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return domain.ConflictError("Email already exists")
	}

	hash, err := argon2id.CreateHash(req.Password, s.params)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.clock.Now().UTC()
	user := &domain.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// The unique indexes still decide a race between two registrations.
	if err := s.users.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	logger.InfoContext(ctx, "User registered", "user_id", user.ID.Hex(), "role", user.Role)
	return nil
}

func (s *authService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	req.Normalize()
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	user, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, domain.NotFoundError("User not found!")
	}

	match, err := argon2id.ComparePasswordAndHash(req.Password, user.PasswordHash)
	if err != nil && !errors.Is(err, argon2id.ErrInvalidHash) && !errors.Is(err, argon2id.ErrIncompatibleVersion) {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		return nil, domain.ErrBadCredentials
	}

	token, err := auth.NewAccessToken(user.ID.Hex(), user.Role, s.cfg.JWTSecret, s.cfg.AccessTokenTTL, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	logger.InfoContext(ctx, "User logged in", "user_id", user.ID.Hex())
	return &domain.LoginResponse{User: user, Token: token}, nil
}

func (s *authService) ResolveSession(ctx context.Context, token string) (Caller, error) {
	if token == "" {
		return Caller{}, domain.AuthError("You are not authenticated!")
	}
	claims, err := auth.Parse(token, s.cfg.JWTSecret)
	if err != nil {
		return Caller{}, domain.AuthError("Token is not valid!")
	}
	id, err := primitive.ObjectIDFromHex(claims.Sub)
	if err != nil {
		return Caller{}, domain.AuthError("Token is not valid!")
	}
	return Caller{ID: id, Role: claims.Role}, nil
}
