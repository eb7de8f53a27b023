package auth

import "errors"

// UserRepository defines operations for user persistence and retrieval.
type UserRepository interface {
	// GetUserByUsername returns (nil, ErrUserNotFound) for unknown users.
	GetUserByUsername(username string) (*User, error)

	// CreateUser expects a bcrypt-hashed password and returns ErrUserExists on conflict.
	CreateUser(username string, passwordHash string, isAdmin bool) (*User, error)

	// TouchLogin updates the last login time
	TouchLogin(id uint64) error
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidateCredentials returns the user if the password matches
func ValidateCredentials(repo UserRepository, username, password string) (*User, error) {
	user, err := repo.GetUserByUsername(username)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
