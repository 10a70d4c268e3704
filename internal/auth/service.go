// Package auth registers and authenticates users and issues the JWT access
// and refresh tokens that guard the API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtat/tomtat/internal/domain"
	"github.com/tomtat/tomtat/internal/ports"
)

// Token lifetimes used when Config leaves them unset.
const (
	DefaultAccessTTL  = 60 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	MinPasswordLength = 6
)

var validate = validator.New()

// Config holds the signing secrets and token lifetimes.
type Config struct {
	Secret        string        `yaml:"secret" json:"-" validate:"required"`
	RefreshSecret string        `yaml:"refresh_secret" json:"-" validate:"required"`
	AccessTTL     time.Duration `yaml:"access_ttl" json:"access_ttl" validate:"required,min=1m"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl" json:"refresh_ttl" validate:"required,gtfield=AccessTTL"`
	BcryptCost    int           `yaml:"bcrypt_cost" json:"bcrypt_cost" validate:"omitempty,min=4,max=31"`
}

// DefaultConfig returns lifetimes of 60 minutes and 7 days. Secrets must be
// supplied by the caller.
func DefaultConfig() Config {
	return Config{
		AccessTTL:  DefaultAccessTTL,
		RefreshTTL: DefaultRefreshTTL,
		BcryptCost: bcrypt.DefaultCost,
	}
}

// RegisterInput is the payload of a registration.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	FullName string `json:"full_name" validate:"max=200"`
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for token issue and expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service implements registration, login and token verification.
type Service struct {
	users  ports.UserStore
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a Service backed by users.
func NewService(users ports.UserStore, cfg Config, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid auth config: %w", err)
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	s := &Service{users: users, cfg: cfg, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "auth"))
	return s, nil
}

// Register creates an account with the user role.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	return s.create(ctx, in, domain.RoleUser)
}

func (s *Service) create(ctx context.Context, in RegisterInput, role domain.Role) (domain.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validate.Struct(in); err != nil {
		verr := domain.NewValidationError("registration")
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				verr.AddError(fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
		} else {
			verr.AddError(err.Error())
		}
		return domain.User{}, verr
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hashing password: %w", err)
	}
	u := domain.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.User{}, fmt.Errorf("email %s already registered: %w", in.Email, domain.ErrConflict)
		}
		return domain.User{}, fmt.Errorf("creating user: %w", err)
	}
	s.logger.Info("user registered", slog.String("user_id", u.ID), slog.String("role", string(role)))
	return u, nil
}

// Login verifies credentials and issues a token pair. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, domain.User, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, domain.ErrNotFound) {
		return TokenPair{}, domain.User{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, domain.User{}, fmt.Errorf("looking up user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return TokenPair{}, domain.User{}, domain.ErrInvalidCredentials
	}
	pair, err := s.issuePair(u.ID)
	if err != nil {
		return TokenPair{}, domain.User{}, err
	}
	return pair, u, nil
}

// Authenticate resolves an access token to its user.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (domain.User, error) {
	id, err := s.ParseAccessToken(accessToken)
	if err != nil {
		return domain.User{}, err
	}
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, fmt.Errorf("%w: user no longer exists", ErrInvalidToken)
	}
	return u, err
}

// ParseAccessToken verifies an access token and returns its subject.
func (s *Service) ParseAccessToken(token string) (string, error) {
	return s.parse(token, TokenAccess, []byte(s.cfg.Secret))
}

// Refresh exchanges a refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	id, err := s.parse(refreshToken, TokenRefresh, []byte(s.cfg.RefreshSecret))
	if err != nil {
		return TokenPair{}, err
	}
	if _, err := s.users.GetByID(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return TokenPair{}, fmt.Errorf("%w: user no longer exists", ErrInvalidToken)
		}
		return TokenPair{}, err
	}
	return s.issuePair(id)
}

// ChangePassword replaces the password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return domain.ErrInvalidCredentials
	}
	if len(next) < MinPasswordLength {
		verr := domain.NewValidationError("password")
		verr.AddError(fmt.Sprintf("new password must be at least %d characters", MinPasswordLength))
		return verr
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	return s.users.UpdatePasswordHash(ctx, userID, string(hash))
}

// Seed accounts created by SeedDefaults.
var defaultAccounts = []struct {
	in   RegisterInput
	role domain.Role
}{
	{RegisterInput{Email: "test@example.com", Password: "secret123", FullName: "Test User"}, domain.RoleUser},
	{RegisterInput{Email: "admin@example.com", Password: "admin123", FullName: "Admin User"}, domain.RoleAdmin},
}

// SeedDefaults creates the test and admin accounts when they are missing.
func (s *Service) SeedDefaults(ctx context.Context) error {
	for _, acct := range defaultAccounts {
		_, err := s.users.GetByEmail(ctx, acct.in.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("checking seed account %s: %w", acct.in.Email, err)
		}
		if _, err := s.create(ctx, acct.in, acct.role); err != nil && !errors.Is(err, domain.ErrConflict) {
			return fmt.Errorf("seeding %s: %w", acct.in.Email, err)
		}
	}
	return nil
}

// ListUsers returns every account.
func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.List(ctx)
}

// DeleteUser removes an account. Missing ids yield domain.ErrNotFound.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("user deleted", slog.String("user_id", id))
	return nil
}
