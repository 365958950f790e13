package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"orgdirectory/internal/config"
	"orgdirectory/internal/models"
	"orgdirectory/internal/repository"
	"orgdirectory/pkg/crypto"
	"orgdirectory/pkg/logger"
)

// Notifier delivers a freshly issued OTP. Delivery itself is out of band;
// the code handed over is the one VerifyOtp will accept.
type Notifier interface {
	Notify(ctx context.Context, email, code string, window time.Duration) error
}

type IdentityService struct {
	store    repository.Store
	notifier Notifier
	policy   crypto.OtpPolicy
	otpKey   string
	now      func() time.Time
}

type IdentityOption func(*IdentityService)

func WithIdentityClock(now func() time.Time) IdentityOption {
	return func(s *IdentityService) { s.now = now }
}

func NewIdentityService(store repository.Store, notifier Notifier, policy crypto.OtpPolicy, otpKey string, opts ...IdentityOption) *IdentityService {
	if policy.Length <= 0 {
		policy.Length = crypto.OtpLength
	}
	if policy.TTL <= 0 {
		policy.TTL = crypto.OtpExpiryWindow
	}
	if policy.MaxResends <= 0 {
		policy.MaxResends = crypto.MaxOtpResends
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = crypto.MaxOtpAttempts
	}
	s := &IdentityService{
		store:    store,
		notifier: notifier,
		policy:   policy,
		otpKey:   otpKey,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RegisterInput struct {
	Username string      `json:"username" validate:"required,min=3,max=255,excludesall=@?"`
	Email    string      `json:"email" validate:"required,email,max=255"`
	Password string      `json:"password" validate:"required,min=5"`
	Role     models.Role `json:"role" validate:"required"`
}

const duplicateUserMessage = "username or email already exists"

// Register creates an unverified user and issues its first OTP.
func (s *IdentityService) Register(ctx context.Context, in RegisterInput) models.ServiceResponse[models.UserView] {
	view, err := s.register(ctx, in)
	return respond("register", view, err, "User registered, verification code sent")
}

func (s *IdentityService) register(ctx context.Context, in RegisterInput) (models.UserView, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := config.Validate.Struct(in); err != nil {
		return models.UserView{}, ValidationError("validation error: %v", err)
	}
	if !validEmail(in.Email) {
		return models.UserView{}, ValidationError("email is invalid")
	}
	if !in.Role.Valid() {
		return models.UserView{}, ValidationError("invalid role '%s'", in.Role)
	}

	hash, salt, err := crypto.HashPassword(in.Password)
	if err != nil {
		return models.UserView{}, err
	}
	code, sealed, err := s.issueOtp("")
	if err != nil {
		return models.UserView{}, err
	}
	expires := s.now().Add(s.policy.TTL)

	user := models.User{
		Username:      in.Username,
		Email:         in.Email,
		PasswordHash:  hash,
		PasswordSalt:  salt,
		Role:          in.Role,
		Otp:           &sealed,
		OtpExpiration: &expires,
	}
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		exists, err := tx.UserExists(ctx, user.Username, user.Email)
		if err != nil {
			return err
		}
		if exists {
			return ValidationError(duplicateUserMessage)
		}
		if user.ID, err = tx.InsertUser(ctx, &user); err != nil {
			return err
		}
		if user.Role == models.RoleAdmin {
			if _, err := tx.InsertAdmin(ctx, user.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, repository.ErrConflict) {
		logger.SecurityLogger.Warn("Duplicate username", zap.String("username", in.Username))
		return models.UserView{}, ValidationError(duplicateUserMessage)
	}
	if err != nil {
		return models.UserView{}, err
	}

	logger.AuditLogger.Info("User registered successfully", zap.Int("user_id", user.ID), zap.String("role", string(user.Role)))
	s.notify(ctx, user.ID, user.Email, code)
	user.CreatedAt = s.now()
	return user.View(), nil
}

// OtpReceipt confirms a code was issued without revealing it.
type OtpReceipt struct {
	UserID      int       `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	ResendCount int       `json:"resend_count"`
}

// ResendOtp replaces the user's current OTP with a new one.
func (s *IdentityService) ResendOtp(ctx context.Context, userID int) models.ServiceResponse[OtpReceipt] {
	receipt, err := s.resendOtp(ctx, userID)
	return respond("resend_otp", receipt, err, "Verification code resent")
}

func (s *IdentityService) resendOtp(ctx context.Context, userID int) (OtpReceipt, error) {
	var (
		receipt OtpReceipt
		code    string
		email   string
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		u, err := tx.GetUser(ctx, userID, true)
		if errors.Is(err, repository.ErrNotFound) {
			return NotFoundError("user", userID)
		}
		if err != nil {
			return err
		}
		if u.IsVerified {
			return AlreadyVerifiedError()
		}
		if u.OtpResendCount >= s.policy.MaxResends {
			logger.SecurityLogger.Warn("OTP resend limit reached", zap.Int("user_id", userID))
			return RateLimitError(s.policy.MaxResends)
		}

		previous := ""
		if u.Otp != nil {
			if previous, err = crypto.Decrypt(*u.Otp, s.otpKey); err != nil {
				logger.ErrorLogger.Error("Error decrypting previous otp", zap.Int("user_id", userID), zap.Error(err))
				previous = ""
			}
		}
		var sealed string
		if code, sealed, err = s.issueOtp(previous); err != nil {
			return err
		}
		expires := s.now().Add(s.policy.TTL)
		u.Otp = &sealed
		u.OtpExpiration = &expires
		u.OtpResendCount++
		u.OtpAttempts = 0
		if err := tx.UpdateUser(ctx, u); err != nil {
			return err
		}

		email = u.Email
		receipt = OtpReceipt{UserID: u.ID, ExpiresAt: expires, ResendCount: u.OtpResendCount}
		return nil
	})
	if err != nil {
		return OtpReceipt{}, err
	}

	logger.AuditLogger.Info("OTP resent", zap.Int("user_id", userID), zap.Int("resend_count", receipt.ResendCount))
	s.notify(ctx, userID, email, code)
	return receipt, nil
}

// VerifyOtp moves the user to Verified when code matches the live OTP.
// A wrong code only bumps the failed-attempt counter; once the counter
// reaches the policy limit the code is locked until a resend.
func (s *IdentityService) VerifyOtp(ctx context.Context, userID int, code string) models.ServiceResponse[models.UserView] {
	view, err := s.verifyOtp(ctx, userID, code)
	return respond("verify_otp", view, err, "Account verified")
}

func (s *IdentityService) verifyOtp(ctx context.Context, userID int, code string) (models.UserView, error) {
	var (
		view     models.UserView
		mismatch bool
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		mismatch = false
		u, err := tx.GetUser(ctx, userID, true)
		if errors.Is(err, repository.ErrNotFound) {
			return NotFoundError("user", userID)
		}
		if err != nil {
			return err
		}
		if u.IsVerified {
			return AlreadyVerifiedError()
		}
		if u.Otp == nil || u.OtpExpiration == nil {
			return InvalidCodeError()
		}
		if s.now().After(*u.OtpExpiration) {
			return ExpiredError()
		}
		if u.OtpAttempts >= s.policy.MaxAttempts {
			return TooManyAttemptsError(s.policy.MaxAttempts)
		}
		stored, err := crypto.Decrypt(*u.Otp, s.otpKey)
		if err != nil {
			return err
		}
		if !crypto.OtpMatches(code, stored) {
			// Commit the counter; the caller still gets InvalidCode.
			u.OtpAttempts++
			mismatch = true
			return tx.UpdateUser(ctx, u)
		}

		u.IsVerified = true
		u.Otp = nil
		u.OtpExpiration = nil
		u.OtpResendCount = 0
		u.OtpAttempts = 0
		if err := tx.UpdateUser(ctx, u); err != nil {
			return err
		}
		view = u.View()
		return nil
	})
	if err == nil && mismatch {
		err = InvalidCodeError()
	}
	if err != nil {
		if IsKind(err, KindInvalidCode) || IsKind(err, KindExpired) || IsKind(err, KindRateLimit) {
			logger.SecurityLogger.Warn("OTP verification failed", zap.Int("user_id", userID), zap.Error(err))
		}
		return models.UserView{}, err
	}
	logger.AuditLogger.Info("User verified", zap.Int("user_id", userID))
	return view, nil
}

// Login authenticates a verified user. Unknown usernames and wrong passwords
// produce the same error.
func (s *IdentityService) Login(ctx context.Context, username, password string) models.ServiceResponse[models.Principal] {
	p, err := s.login(ctx, username, password)
	return respond("login", p, err, "Login success")
}

func (s *IdentityService) login(ctx context.Context, username, password string) (models.Principal, error) {
	var user *models.User
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		user, err = tx.GetUserByUsername(ctx, strings.TrimSpace(username))
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		hash, salt := dummyCredentials()
		crypto.VerifyPassword(password, hash, salt)
		logger.SecurityLogger.Warn("User not found", zap.String("username", username))
		return models.Principal{}, InvalidCredentialsError()
	}
	if err != nil {
		return models.Principal{}, err
	}
	if !crypto.VerifyPassword(password, user.PasswordHash, user.PasswordSalt) {
		logger.SecurityLogger.Warn("Invalid password", zap.Int("user_id", user.ID))
		return models.Principal{}, InvalidCredentialsError()
	}
	if !user.IsVerified {
		logger.SecurityLogger.Warn("Login attempt on unverified account", zap.Int("user_id", user.ID))
		return models.Principal{}, NotVerifiedError()
	}

	logger.AuditLogger.Info("Login success", zap.Int("user_id", user.ID), zap.String("role", string(user.Role)))
	return models.Principal{UserID: user.ID, Role: user.Role}, nil
}

// ResetOtpResends starts a new resend cycle for an unverified user.
func (s *IdentityService) ResetOtpResends(ctx context.Context, userID int) models.ServiceResponse[models.UserView] {
	var view models.UserView
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		u, err := tx.GetUser(ctx, userID, true)
		if errors.Is(err, repository.ErrNotFound) {
			return NotFoundError("user", userID)
		}
		if err != nil {
			return err
		}
		if u.IsVerified {
			return AlreadyVerifiedError()
		}
		u.OtpResendCount = 0
		u.OtpAttempts = 0
		view = u.View()
		return tx.UpdateUser(ctx, u)
	})
	if err == nil {
		logger.AuditLogger.Info("OTP resend counter reset", zap.Int("user_id", userID))
	}
	return respond("reset_otp_resends", view, err, "OTP resend counter reset")
}

func (s *IdentityService) GetUser(ctx context.Context, userID int) models.ServiceResponse[models.UserView] {
	var view models.UserView
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		u, err := tx.GetUser(ctx, userID, false)
		if errors.Is(err, repository.ErrNotFound) {
			return NotFoundError("user", userID)
		}
		if err != nil {
			return err
		}
		view = u.View()
		return nil
	})
	return respond("get_user", view, err, "User found")
}

// SeedAdmin makes sure a verified admin account exists. An existing username
// is left as is.
func (s *IdentityService) SeedAdmin(ctx context.Context, username, email, password string) models.ServiceResponse[models.UserView] {
	hash, salt, err := crypto.HashPassword(password)
	if err != nil {
		return respond("seed_admin", models.UserView{}, err, "")
	}
	var view models.UserView
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		existing, err := tx.GetUserByUsername(ctx, username)
		if err == nil {
			view = existing.View()
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		u := models.User{
			Username:     username,
			Email:        email,
			PasswordHash: hash,
			PasswordSalt: salt,
			Role:         models.RoleAdmin,
			IsVerified:   true,
		}
		if u.ID, err = tx.InsertUser(ctx, &u); err != nil {
			return err
		}
		if _, err := tx.InsertAdmin(ctx, u.ID); err != nil {
			return err
		}
		view = u.View()
		return nil
	})
	if err == nil {
		logger.SystemLogger.Info("Admin user is ready", zap.String("username", username))
	}
	return respond("seed_admin", view, err, "Admin user is ready")
}

// issueOtp draws a code that differs from previous and seals it for storage.
func (s *IdentityService) issueOtp(previous string) (code, sealed string, err error) {
	for {
		code, err = crypto.GenerateOtpN(s.policy.Length)
		if err != nil {
			return "", "", err
		}
		if code != previous {
			break
		}
	}
	sealed, err = crypto.Encrypt(code, s.otpKey)
	if err != nil {
		return "", "", err
	}
	return code, sealed, nil
}

func (s *IdentityService) notify(ctx context.Context, userID int, email, code string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, email, code, s.policy.TTL); err != nil {
		logger.ErrorLogger.Error("Error sending verification code", zap.Int("user_id", userID), zap.Error(err))
	}
}

// validEmail accepts a bare RFC 5322 address with a dotted domain.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}

var (
	dummyOnce sync.Once
	dummyHash []byte
	dummySalt []byte
)

// dummyCredentials keeps unknown-user logins as slow as real ones.
func dummyCredentials() ([]byte, []byte) {
	dummyOnce.Do(func() {
		dummyHash, dummySalt, _ = crypto.HashPassword("dummy-password")
	})
	return dummyHash, dummySalt
}
