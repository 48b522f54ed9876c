package models

import (
	"time"

	"github.com/storefront/backend/internal/domain/identity"
	"github.com/storefront/backend/internal/domain/shared"
)

// UserModel is the persistence model for the User aggregate.
type UserModel struct {
	BaseModel
	Email                string        `gorm:"type:varchar(254);not null;uniqueIndex:idx_users_email"`
	PasswordHash         string        `gorm:"type:varchar(255);not null"`
	Name                 string        `gorm:"type:varchar(100);not null"`
	Role                 identity.Role `gorm:"type:varchar(10);not null"`
	IsVerified           bool          `gorm:"not null"`
	OTP                  *string       `gorm:"column:otp;type:varchar(6)"`
	OTPExpires           *time.Time    `gorm:"column:otp_expires"`
	LoginAttempts        int           `gorm:"not null"`
	LockoutUntil         *time.Time
	PasswordResetToken   *string `gorm:"type:varchar(64);index:idx_users_password_reset_token"`
	PasswordResetExpires *time.Time
}

// TableName returns the table name for GORM
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts the persistence model to a domain User.
// A role column holding an unknown value loads as USER.
func (m *UserModel) ToDomain() *identity.User {
	role := m.Role
	if !role.IsValid() {
		role = identity.RoleUser
	}
	return &identity.User{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: m.BaseModel.ToDomain(),
		},
		Email:                m.Email,
		PasswordHash:         m.PasswordHash,
		Name:                 m.Name,
		Role:                 role,
		IsVerified:           m.IsVerified,
		OTP:                  m.OTP,
		OTPExpires:           m.OTPExpires,
		LoginAttempts:        m.LoginAttempts,
		LockoutUntil:         m.LockoutUntil,
		PasswordResetToken:   m.PasswordResetToken,
		PasswordResetExpires: m.PasswordResetExpires,
	}
}

// FromDomain populates the persistence model from a domain User
func (m *UserModel) FromDomain(u *identity.User) {
	m.FromDomainBaseEntity(u.BaseEntity)
	m.Email = u.Email
	m.PasswordHash = u.PasswordHash
	m.Name = u.Name
	m.Role = u.Role
	m.IsVerified = u.IsVerified
	m.OTP = u.OTP
	m.OTPExpires = u.OTPExpires
	m.LoginAttempts = u.LoginAttempts
	m.LockoutUntil = u.LockoutUntil
	m.PasswordResetToken = u.PasswordResetToken
	m.PasswordResetExpires = u.PasswordResetExpires
}

// MutableColumns returns the columns written on update. Nil pointers become NULL.
func (m *UserModel) MutableColumns() map[string]any {
	return map[string]any{
		"email":                  m.Email,
		"password_hash":          m.PasswordHash,
		"name":                   m.Name,
		"role":                   m.Role,
		"is_verified":            m.IsVerified,
		"otp":                    m.OTP,
		"otp_expires":            m.OTPExpires,
		"login_attempts":         m.LoginAttempts,
		"lockout_until":          m.LockoutUntil,
		"password_reset_token":   m.PasswordResetToken,
		"password_reset_expires": m.PasswordResetExpires,
		"updated_at":             m.UpdatedAt,
	}
}

// UserModelFromDomain creates a new persistence model from a domain User
func UserModelFromDomain(u *identity.User) *UserModel {
	m := &UserModel{}
	m.FromDomain(u)
	return m
}
