package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Staff roles.
const (
	RoleAdmin     = "admin"
	RoleFrontDesk = "front_desk"
)

// Staff is a back-office account able to confirm in-person payments and
// pull reports.
type Staff struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	FullName     string    `db:"full_name" json:"full_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// JWTClaims are the claims embedded in staff access tokens.
type JWTClaims struct {
	StaffID string `json:"staff_id"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// LoginRequest is the staff login payload.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued token and staff profile.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
	Staff       StaffInfo `json:"staff"`
}

// StaffInfo is the public projection of a staff account.
type StaffInfo struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}
