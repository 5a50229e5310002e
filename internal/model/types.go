package model

import (
	"strings"
	"time"
)

// Role is the authorization role of a user
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Status is the account status of a user. FREEZE blocks login until cleared by an operator.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusFreeze Status = "FREEZE"
)

// User represents a registered account keyed by its normalized phone number
type User struct {
	ID                 int64
	Phone              string
	PasswordHash       string
	FirstName          *string
	LastName           *string
	Image              *string
	Role               Role
	Status             Status
	ErrorLoginCount    int
	SessionFingerprint string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// FullName joins first and last name, empty when neither is set
func (u User) FullName() string {
	var parts []string
	if u.FirstName != nil && *u.FirstName != "" {
		parts = append(parts, *u.FirstName)
	}
	if u.LastName != nil && *u.LastName != "" {
		parts = append(parts, *u.LastName)
	}
	return strings.Join(parts, " ")
}

// ImagePath returns the public path of the optimized profile image, nil when the user has none
func (u User) ImagePath() *string {
	if u.Image == nil || *u.Image == "" {
		return nil
	}
	name := *u.Image
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	p := "/optimize/" + name + ".webp"
	return &p
}

// NewUser holds the fields required to create a user
type NewUser struct {
	Phone              string
	PasswordHash       string
	SessionFingerprint string
}

// UserUpdate is a partial update of a user row. Nil fields are left untouched.
type UserUpdate struct {
	PasswordHash       *string
	Status             *Status
	ErrorLoginCount    *int
	SessionFingerprint *string

	IncrementErrorLoginCount bool
}

// OtpChallenge is the single active OTP slot of a phone number. It is never deleted and doubles as the
// per-phone abuse ledger.
type OtpChallenge struct {
	ID            int64
	Phone         string
	OTPHash       string
	RememberToken string
	VerifyToken   string
	RequestCount  int
	ErrorCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOtpChallenge holds the fields required to create a challenge row
type NewOtpChallenge struct {
	Phone         string
	OTPHash       string
	RememberToken string
}

// OtpUpdate is a partial update of a challenge row. Nil fields are left untouched.
type OtpUpdate struct {
	OTPHash       *string
	RememberToken *string
	VerifyToken   *string
	RequestCount  *int
	ErrorCount    *int

	IncrementRequestCount bool
	IncrementErrorCount   bool
}

// SettingMaintenance is the setting key of the maintenance switch
const SettingMaintenance = "maintenance"

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}
