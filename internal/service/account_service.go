package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/leadgrid/leadgrid-api/internal/config"
	"github.com/leadgrid/leadgrid-api/internal/mailer"
	"github.com/leadgrid/leadgrid-api/internal/models"
	"github.com/leadgrid/leadgrid-api/internal/repository"
)

// AccountService implements website registration, login, token
// verification, and the password reset flow.
type AccountService struct {
	cfg    *config.Config
	repos  *repository.Repositories
	mailer mailer.Mailer
	logger *slog.Logger
}

func NewAccountService(cfg *config.Config, repos *repository.Repositories, mail mailer.Mailer, logger *slog.Logger) *AccountService {
	return &AccountService{cfg: cfg, repos: repos, mailer: mail, logger: logger}
}

// SessionClaims is the JWT payload for website sessions.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Session is a freshly issued bearer token.
type Session struct {
	Token     string
	ExpiresAt time.Time
	UserID    string
	Email     string
}

// Register creates a website account and issues a session.
func (s *AccountService) Register(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}

	existing, err := s.repos.User.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           ulid.Make().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repos.User.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return s.issueSession(user)
}

// Login verifies credentials and issues a session. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.repos.User.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issueSession(user)
}

// VerifyToken validates a bearer token and returns its claims.
func (s *AccountService) VerifyToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: expired", ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RequestPasswordReset opens a single-use, one-hour reset token and
// emails the link. A missing account is reported as success to the
// caller so the endpoint cannot be used to enumerate which emails exist.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil
	}

	user, err := s.repos.User.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	if user == nil {
		s.logger.Info("password reset requested for unknown email")
		return nil
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	token := hex.EncodeToString(raw)

	now := time.Now().UTC()
	reset := &models.PasswordReset{
		ID:        ulid.Make().String(),
		UserID:    user.ID,
		TokenHash: hashToken(token),
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	if err := s.repos.User.CreatePasswordReset(ctx, reset); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(s.cfg.BaseURL, "/"), token)
	if err := s.mailer.SendPasswordReset(ctx, email, resetURL); err != nil {
		s.logger.Error("password reset email failed", "error", err)
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

// ResetPassword consumes a reset token and sets the new password.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	reset, err := s.repos.User.GetPasswordResetByTokenHash(ctx, hashToken(token))
	if err != nil {
		return fmt.Errorf("look up reset token: %w", err)
	}
	now := time.Now().UTC()
	if reset == nil || reset.UsedAt != nil || now.After(reset.ExpiresAt) {
		return ErrInvalidToken
	}

	// Consume first: a token that raced another reset must not change
	// the password twice.
	consumed, err := s.repos.User.MarkPasswordResetUsed(ctx, reset.ID, now)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if !consumed {
		return ErrInvalidToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repos.User.UpdatePassword(ctx, reset.UserID, string(hash), now); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *AccountService) issueSession(user *models.User) (*Session, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.cfg.JWTExpiry)

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: user.Email,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &Session{
		Token:     token,
		ExpiresAt: expiresAt,
		UserID:    user.ID,
		Email:     user.Email,
	}, nil
}

// hashToken stores only the SHA-256 of reset tokens; a leaked database
// row cannot be replayed as a reset link.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("invalid email address")
	}
	return email, nil
}
