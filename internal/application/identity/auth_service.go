package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/identity"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/auth"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Client-facing messages
const (
	SignupMessage         = "Signup successful. Please check your email for the verification code"
	VerifiedMessage       = "Email verified successfully"
	ResendOTPMessage      = "If the account exists and is not yet verified, a new code has been sent"
	ForgotPasswordMessage = "If that email is registered, a reset link has been sent"
	ResetPasswordMessage  = "Password has been reset successfully"
	LogoutMessage         = "Logged out successfully"
)

// Operation and outcome labels reported to AuthMetrics
const (
	OpSignup         = "signup"
	OpVerifyOTP      = "verify_otp"
	OpLogin          = "login"
	OpRefresh        = "refresh"
	OpForgotPassword = "forgot_password"
	OpResetPassword  = "reset_password"
	OpLogout         = "logout"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeLocked  = "locked"
	OutcomeReplay  = "replay"
)

// TokenIssuer mints session tokens
type TokenIssuer interface {
	IssueTokenPair(userID uuid.UUID, role string) (*auth.TokenPair, error)
	AccessTokenExpiration() time.Duration
}

// Notifier hands domain events to the notification pipeline
type Notifier interface {
	Notify(ctx context.Context, events ...shared.DomainEvent) error
}

// CodeGenerator produces one-time verification codes
type CodeGenerator interface {
	Generate() string
}

// AuthMetrics receives auth outcome counts
type AuthMetrics interface {
	RecordAuthOutcome(ctx context.Context, operation, outcome string)
}

type noopAuthMetrics struct{}

func (noopAuthMetrics) RecordAuthOutcome(context.Context, string, string) {}

// AuthServiceConfig contains credential policy for the auth service
type AuthServiceConfig struct {
	MaxLoginAttempts int
	LockoutDuration  time.Duration
	OTPTTL           time.Duration
	ResetTokenTTL    time.Duration
	BcryptCost       int
	FrontendURL      string
}

// DefaultAuthServiceConfig returns default configuration
func DefaultAuthServiceConfig() AuthServiceConfig {
	return AuthServiceConfig{
		MaxLoginAttempts: 5,
		LockoutDuration:  15 * time.Minute,
		OTPTTL:           10 * time.Minute,
		ResetTokenTTL:    10 * time.Minute,
		BcryptCost:       identity.DefaultBcryptCost,
		FrontendURL:      "http://localhost:3000",
	}
}

// AuthServiceConfigFrom builds the service config from application config
func AuthServiceConfigFrom(cfg *config.Config) AuthServiceConfig {
	return AuthServiceConfig{
		MaxLoginAttempts: cfg.Auth.MaxLoginAttempts,
		LockoutDuration:  cfg.Auth.LockoutDuration,
		OTPTTL:           cfg.Auth.OTPTTL,
		ResetTokenTTL:    cfg.Auth.ResetTokenTTL,
		BcryptCost:       cfg.Auth.BcryptCost,
		FrontendURL:      cfg.App.FrontendURL,
	}
}

// AuthServiceOption configures optional collaborators
type AuthServiceOption func(*AuthService)

// WithTokenBlacklist enables access token revocation on logout and password reset
func WithTokenBlacklist(bl auth.TokenBlacklist) AuthServiceOption {
	return func(s *AuthService) { s.blacklist = bl }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) AuthServiceOption {
	return func(s *AuthService) { s.now = now }
}

// WithAuthMetrics reports outcomes to m
func WithAuthMetrics(m AuthMetrics) AuthServiceOption {
	return func(s *AuthService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// AuthService orchestrates signup, verification, login, password reset and sessions
type AuthService struct {
	userRepo    identity.UserRepository
	refreshRepo identity.RefreshTokenRepository
	tokens      TokenIssuer
	notifier    Notifier
	codes       CodeGenerator
	blacklist   auth.TokenBlacklist
	metrics     AuthMetrics
	config      AuthServiceConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(
	userRepo identity.UserRepository,
	refreshRepo identity.RefreshTokenRepository,
	tokens TokenIssuer,
	notifier Notifier,
	codes CodeGenerator,
	cfg AuthServiceConfig,
	logger *zap.Logger,
	opts ...AuthServiceOption,
) *AuthService {
	s := &AuthService{
		userRepo:    userRepo,
		refreshRepo: refreshRepo,
		tokens:      tokens,
		notifier:    notifier,
		codes:       codes,
		metrics:     noopAuthMetrics{},
		config:      cfg,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup registers an unverified account and queues the verification email.
// The code itself is never part of the result.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (string, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "auth", OpSignup)
	defer span.End()

	email := identity.NormalizeEmail(input.Email)

	exists, err := s.userRepo.ExistsByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		s.metrics.RecordAuthOutcome(ctx, OpSignup, OutcomeFailure)
		return "", identity.ErrEmailAlreadyExists
	}

	hash, err := identity.HashPassword(input.Password, s.config.BcryptCost)
	if err != nil {
		return "", err
	}

	now := s.now()
	user, err := identity.NewUser(email, hash, input.Name, s.codes.Generate(), s.config.OTPTTL, now)
	if err != nil {
		return "", err
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			s.metrics.RecordAuthOutcome(ctx, OpSignup, OutcomeFailure)
			return "", identity.ErrEmailAlreadyExists
		}
		return "", fmt.Errorf("create user: %w", err)
	}

	if err := s.publish(ctx, user); err != nil {
		s.logger.Error("Failed to queue verification email",
			zap.String("user_id", user.ID.String()), zap.Error(err))
		return "", fmt.Errorf("queue verification email: %w", err)
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID.String()))
	s.metrics.RecordAuthOutcome(ctx, OpSignup, OutcomeSuccess)
	return SignupMessage, nil
}

// VerifyOTP marks the account verified and starts a session
func (s *AuthService) VerifyOTP(ctx context.Context, input VerifyOTPInput) (*AuthResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "auth", OpVerifyOTP)
	defer span.End()

	user, err := s.userRepo.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.metrics.RecordAuthOutcome(ctx, OpVerifyOTP, OutcomeFailure)
			return nil, identity.ErrInvalidOTP
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	now := s.now()
	if err := user.VerifyOTP(input.OTP, now); err != nil {
		s.metrics.RecordAuthOutcome(ctx, OpVerifyOTP, OutcomeFailure)
		return nil, err
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	result, err := s.startSession(ctx, user, now)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User verified", zap.String("user_id", user.ID.String()))
	s.metrics.RecordAuthOutcome(ctx, OpVerifyOTP, OutcomeSuccess)
	return result, nil
}

// ResendOTP issues a fresh verification code for an unverified account.
// The message is the same whether or not the account exists.
func (s *AuthService) ResendOTP(ctx context.Context, email string) (string, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return ResendOTPMessage, nil
		}
		return "", fmt.Errorf("find user: %w", err)
	}

	if err := user.ReissueVerificationCode(s.codes.Generate(), s.config.OTPTTL, s.now()); err != nil {
		if errors.Is(err, identity.ErrAlreadyVerified) {
			return ResendOTPMessage, nil
		}
		return "", err
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return "", fmt.Errorf("update user: %w", err)
	}
	if err := s.publish(ctx, user); err != nil {
		return "", fmt.Errorf("queue verification email: %w", err)
	}
	return ResendOTPMessage, nil
}

// Login checks credentials, enforcing the failed-attempt lockout
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "auth", OpLogin)
	defer span.End()

	user, err := s.userRepo.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Info("Login for unknown email", zap.String("ip", input.IP))
			s.metrics.RecordAuthOutcome(ctx, OpLogin, OutcomeFailure)
			return nil, identity.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	now := s.now()
	if user.IsLockedOut(now) {
		s.logger.Warn("Login attempt for locked account",
			zap.String("user_id", user.ID.String()), zap.String("ip", input.IP))
		s.metrics.RecordAuthOutcome(ctx, OpLogin, OutcomeLocked)
		return nil, identity.ErrAccountLocked
	}

	if !user.VerifyPassword(input.Password) {
		locked := user.RecordLoginFailure(s.config.MaxLoginAttempts, s.config.LockoutDuration, now)
		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("record login failure: %w", err)
		}
		if locked {
			s.logger.Warn("Account locked after too many failed attempts",
				zap.String("user_id", user.ID.String()),
				zap.Int("attempts", user.LoginAttempts))
		}
		s.metrics.RecordAuthOutcome(ctx, OpLogin, OutcomeFailure)
		return nil, identity.ErrInvalidCredentials
	}

	user.RecordLoginSuccess(now)
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("record login success: %w", err)
	}

	result, err := s.startSession(ctx, user, now)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User logged in", zap.String("user_id", user.ID.String()), zap.String("ip", input.IP))
	s.metrics.RecordAuthOutcome(ctx, OpLogin, OutcomeSuccess)
	return result, nil
}

// ForgotPassword issues a reset token when the account exists.
// The message is identical for unknown emails, and a failure to queue
// the email is logged rather than returned for the same reason.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.metrics.RecordAuthOutcome(ctx, OpForgotPassword, OutcomeFailure)
			return ForgotPasswordMessage, nil
		}
		return "", fmt.Errorf("find user: %w", err)
	}

	raw, digest, err := auth.GenerateResetToken()
	if err != nil {
		return "", err
	}
	resetURL := strings.TrimRight(s.config.FrontendURL, "/") + "/reset-password/" + raw

	user.RequestPasswordReset(digest, resetURL, s.config.ResetTokenTTL, s.now())
	if err := s.userRepo.Update(ctx, user); err != nil {
		return "", fmt.Errorf("update user: %w", err)
	}

	if err := s.publish(ctx, user); err != nil {
		s.logger.Error("Failed to queue password reset email",
			zap.String("user_id", user.ID.String()), zap.Error(err))
	}

	s.metrics.RecordAuthOutcome(ctx, OpForgotPassword, OutcomeSuccess)
	return ForgotPasswordMessage, nil
}

// ResetPassword replaces the password of the account holding the reset token.
// Every refresh token of the user is revoked, and with a blacklist configured
// access tokens issued before the reset stop working as well.
func (s *AuthService) ResetPassword(ctx context.Context, input ResetPasswordInput) (string, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "auth", OpResetPassword)
	defer span.End()

	if err := identity.ValidatePassword(input.NewPassword); err != nil {
		return "", err
	}

	now := s.now()
	digest := auth.HashToken(input.Token)
	user, err := s.userRepo.FindByPasswordResetToken(ctx, digest, now)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.metrics.RecordAuthOutcome(ctx, OpResetPassword, OutcomeFailure)
			return "", identity.ErrInvalidResetToken
		}
		return "", fmt.Errorf("find user: %w", err)
	}

	hash, err := identity.HashPassword(input.NewPassword, s.config.BcryptCost)
	if err != nil {
		return "", err
	}
	if err := user.ResetPassword(digest, hash, now); err != nil {
		s.metrics.RecordAuthOutcome(ctx, OpResetPassword, OutcomeFailure)
		return "", err
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return "", fmt.Errorf("update user: %w", err)
	}

	revoked, err := s.refreshRepo.RevokeAllForUser(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("revoke sessions: %w", err)
	}
	if s.blacklist != nil {
		if err := s.blacklist.InvalidateUserTokens(ctx, user.ID.String(), now, s.tokens.AccessTokenExpiration()); err != nil {
			s.logger.Warn("Failed to invalidate access tokens", zap.String("user_id", user.ID.String()), zap.Error(err))
		}
	}
	if err := s.publish(ctx, user); err != nil {
		s.logger.Warn("Failed to publish password change", zap.Error(err))
	}

	s.logger.Info("Password reset",
		zap.String("user_id", user.ID.String()),
		zap.Int64("sessions_revoked", revoked))
	s.metrics.RecordAuthOutcome(ctx, OpResetPassword, OutcomeSuccess)
	return ResetPasswordMessage, nil
}

// RefreshTokens exchanges a refresh token for a new pair. The presented token
// is single use: concurrent or repeated use of it fails with ErrInvalidRefreshToken.
func (s *AuthService) RefreshTokens(ctx context.Context, refreshToken string) (*TokenResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "auth", OpRefresh)
	defer span.End()

	if refreshToken == "" {
		return nil, identity.ErrInvalidRefreshToken
	}

	now := s.now()
	stored, err := s.refreshRepo.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.metrics.RecordAuthOutcome(ctx, OpRefresh, OutcomeFailure)
			return nil, identity.ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	if !stored.IsActive(now) {
		outcome := OutcomeFailure
		if stored.Revoked && stored.ReplacedByToken != nil {
			outcome = OutcomeReplay
			s.logger.Warn("Rotated refresh token presented again", zap.String("user_id", stored.UserID.String()))
		}
		s.metrics.RecordAuthOutcome(ctx, OpRefresh, outcome)
		return nil, identity.ErrInvalidRefreshToken
	}

	user, err := s.userRepo.FindByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, identity.ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	pair, err := s.tokens.IssueTokenPair(user.ID, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	successor := identity.NewRefreshToken(user.ID, pair.RefreshToken, pair.RefreshTokenExpiresAt, now)
	if err := s.refreshRepo.Rotate(ctx, refreshToken, successor, now); err != nil {
		if errors.Is(err, identity.ErrInvalidRefreshToken) {
			s.metrics.RecordAuthOutcome(ctx, OpRefresh, OutcomeReplay)
			return nil, identity.ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	s.metrics.RecordAuthOutcome(ctx, OpRefresh, OutcomeSuccess)
	return &TokenResult{
		AccessToken:           pair.AccessToken,
		AccessTokenExpiresAt:  pair.AccessTokenExpiresAt,
		RefreshToken:          pair.RefreshToken,
		RefreshTokenExpiresAt: pair.RefreshTokenExpiresAt,
	}, nil
}

// Logout revokes the refresh token. Unknown or already revoked tokens are not errors.
func (s *AuthService) Logout(ctx context.Context, input LogoutInput) (string, error) {
	if input.RefreshToken != "" {
		if _, err := s.refreshRepo.Revoke(ctx, input.RefreshToken); err != nil {
			return "", fmt.Errorf("revoke refresh token: %w", err)
		}
	}

	if input.AccessTokenJTI != "" && s.blacklist != nil {
		if err := s.blacklist.AddToBlacklist(ctx, input.AccessTokenJTI, input.AccessTokenTTL); err != nil {
			s.logger.Warn("Failed to blacklist access token", zap.Error(err))
		}
	}

	s.metrics.RecordAuthOutcome(ctx, OpLogout, OutcomeSuccess)
	return LogoutMessage, nil
}

// GetCurrentUser returns the public view of a user
func (s *AuthService) GetCurrentUser(ctx context.Context, userID uuid.UUID) (*UserInfo, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	info := userInfoFrom(user)
	return &info, nil
}

// startSession issues a token pair and stores the refresh token
func (s *AuthService) startSession(ctx context.Context, user *identity.User, now time.Time) (*AuthResult, error) {
	pair, err := s.tokens.IssueTokenPair(user.ID, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	record := identity.NewRefreshToken(user.ID, pair.RefreshToken, pair.RefreshTokenExpiresAt, now)
	if err := s.refreshRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &AuthResult{
		User:                  userInfoFrom(user),
		AccessToken:           pair.AccessToken,
		AccessTokenExpiresAt:  pair.AccessTokenExpiresAt,
		RefreshToken:          pair.RefreshToken,
		RefreshTokenExpiresAt: pair.RefreshTokenExpiresAt,
	}, nil
}

// publish hands pending domain events to the notifier and clears them
func (s *AuthService) publish(ctx context.Context, user *identity.User) error {
	events := user.GetDomainEvents()
	if len(events) == 0 {
		return nil
	}
	defer user.ClearDomainEvents()
	return s.notifier.Notify(ctx, events...)
}
