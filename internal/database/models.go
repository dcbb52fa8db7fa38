package database

import (
	"time"

	"github.com/uptrace/bun"
)

// User is the bun row model for the users relation.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID                       int64      `bun:"id,pk,autoincrement"`
	FirstName                string     `bun:"first_name,notnull"`
	LastName                 string     `bun:"last_name,notnull"`
	Email                    string     `bun:"email,notnull,unique"`
	Phone                    *string    `bun:"phone"`
	PasswordHash             string     `bun:"password_hash,notnull"`
	IsVerified               bool       `bun:"is_verified,notnull,default:false"`
	VerificationToken        *string    `bun:"verification_token"`
	VerificationTokenExpires *time.Time `bun:"verification_token_expires"`
	BVN                      *string    `bun:"bvn"`
	SelfieURL                *string    `bun:"selfie_url"`
	KYCVerified              bool       `bun:"kyc_verified,notnull,default:false"`
	CreatedAt                time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt                time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}
