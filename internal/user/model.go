package user

import (
	"time"
)

// User is the domain model for an account holder.
type User struct {
	ID                       int64      `json:"id"`
	FirstName                string     `json:"first_name"`
	LastName                 string     `json:"last_name"`
	Email                    string     `json:"email"`
	Phone                    *string    `json:"phone,omitempty"`
	PasswordHash             string     `json:"-"` // Never expose password hash in JSON
	IsVerified               bool       `json:"is_verified"`
	VerificationToken        *string    `json:"-"`
	VerificationTokenExpires *time.Time `json:"-"`
	BVN                      *string    `json:"-"` // National identifier, never serialized
	SelfieURL                *string    `json:"selfie_url,omitempty"`
	KYCVerified              bool       `json:"kyc_verified"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

// NewUserParams carries the fields needed to insert a user row.
type NewUserParams struct {
	FirstName                string
	LastName                 string
	Email                    string
	PasswordHash             string
	VerificationToken        string
	VerificationTokenExpires time.Time
}

// ProfileUpdate is a typed partial update. Nil fields are left untouched.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
}

// IsEmpty reports whether the update carries no fields at all.
func (p ProfileUpdate) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Phone == nil
}
