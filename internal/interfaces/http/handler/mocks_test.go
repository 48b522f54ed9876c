package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/application/identity"
	"github.com/storefront/backend/internal/infrastructure/auth"
	"github.com/stretchr/testify/mock"
)

// MockAuthUseCases is a mock implementation of AuthUseCases
type MockAuthUseCases struct {
	mock.Mock
}

func (m *MockAuthUseCases) Signup(ctx context.Context, input identity.SignupInput) (string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.Error(1)
}

func (m *MockAuthUseCases) VerifyOTP(ctx context.Context, input identity.VerifyOTPInput) (*identity.AuthResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.AuthResult), args.Error(1)
}

func (m *MockAuthUseCases) ResendOTP(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

func (m *MockAuthUseCases) Login(ctx context.Context, input identity.LoginInput) (*identity.AuthResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.AuthResult), args.Error(1)
}

func (m *MockAuthUseCases) ForgotPassword(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

func (m *MockAuthUseCases) ResetPassword(ctx context.Context, input identity.ResetPasswordInput) (string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.Error(1)
}

func (m *MockAuthUseCases) RefreshTokens(ctx context.Context, refreshToken string) (*identity.TokenResult, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.TokenResult), args.Error(1)
}

func (m *MockAuthUseCases) Logout(ctx context.Context, input identity.LogoutInput) (string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.Error(1)
}

func (m *MockAuthUseCases) GetCurrentUser(ctx context.Context, userID uuid.UUID) (*identity.UserInfo, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.UserInfo), args.Error(1)
}

// stubValidator accepts exactly one token
type stubValidator struct {
	token  string
	claims *auth.Claims
}

func (v stubValidator) ValidateAccessToken(token string) (*auth.Claims, error) {
	if token != v.token {
		return nil, auth.ErrInvalidToken
	}
	return v.claims, nil
}

func claimsFor(userID uuid.UUID, jti string, ttl time.Duration) *auth.Claims {
	c := &auth.Claims{UserID: userID.String(), Role: "USER"}
	c.ID = jti
	now := time.Now()
	c.IssuedAt = jwtDate(now)
	c.ExpiresAt = jwtDate(now.Add(ttl))
	return c
}
