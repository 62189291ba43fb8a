package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/memeflix/backend/internal/database/dberr"
	"github.com/memeflix/backend/internal/serviceerr"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 32
	minPasswordLength = 6
	// bcrypt ignores input past 72 bytes.
	maxPasswordLength = 72

	opRegister     = "users.register"
	opAuthenticate = "users.authenticate"
	opGet          = "users.get"
	reasonLookup   = "lookup_failed"
	reasonHash     = "hash_failed"
	reasonInsert   = "insert_failed"
)

var (
	// ErrInvalidUsername indicates the username is missing, too short/long, or uses unsupported characters.
	ErrInvalidUsername = errors.New("users: invalid username")
	// ErrInvalidEmail indicates the email address is missing or malformed.
	ErrInvalidEmail = errors.New("users: invalid email")
	// ErrInvalidPassword indicates the password does not satisfy length requirements.
	ErrInvalidPassword = errors.New("users: invalid password")
	// ErrDuplicateUser indicates the username or email is already registered.
	ErrDuplicateUser = errors.New("users: username or email already exists")
	// ErrInvalidCredentials indicates an unknown username or a wrong password.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrUserNotFound indicates no account exists for the requested id.
	ErrUserNotFound = errors.New("users: user not found")

	errMissingDatabase = errors.New("users: database connection required")
	usernamePattern    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	Logger     *zap.Logger
	BcryptCost int
}

// Service registers and authenticates users.
type Service struct {
	db         *gorm.DB
	now        func() time.Time
	logger     *zap.Logger
	bcryptCost int
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("users: bcrypt cost %d out of range", cost)
	}
	return &Service{
		db:         cfg.Database,
		now:        clock,
		logger:     logger,
		bcryptCost: cost,
	}, nil
}

// Register validates the request, hashes the password and stores a new user.
func (s *Service) Register(ctx context.Context, request RegistrationRequest) (User, error) {
	username := normalize(request.Username)
	email := strings.ToLower(normalize(request.Email))
	if err := validateRegistration(username, email, request.Password); err != nil {
		return User{}, err
	}

	var existing int64
	if err := s.db.WithContext(ctx).
		Model(&User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&existing).Error; err != nil {
		return User{}, serviceerr.Fail(s.logger, opRegister, reasonLookup, err, zap.String("username", username))
	}
	if existing > 0 {
		return User{}, ErrDuplicateUser
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(request.Password), s.bcryptCost)
	if err != nil {
		return User{}, serviceerr.Fail(s.logger, opRegister, reasonHash, err, zap.String("username", username))
	}

	user := User{
		Username:         username,
		Email:            email,
		PasswordHash:     string(hash),
		CreatedAtSeconds: s.now().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if dberr.IsUniqueViolation(err) {
			return User{}, ErrDuplicateUser
		}
		return User{}, serviceerr.Fail(s.logger, opRegister, reasonInsert, err, zap.String("username", username))
	}

	s.logger.Info("user registered", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// Authenticate returns the user when the password matches the stored hash.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	username = normalize(username)
	if username == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}

	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, serviceerr.Fail(s.logger, opAuthenticate, reasonLookup, err, zap.String("username", username))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, id uint) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Take(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, serviceerr.Fail(s.logger, opGet, reasonLookup, err, zap.Uint("user_id", id))
	}
	return user, nil
}

func validateRegistration(username, email, password string) error {
	if len(username) < minUsernameLength || len(username) > maxUsernameLength || !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return ErrInvalidEmail
	}
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return ErrInvalidPassword
	}
	return nil
}
