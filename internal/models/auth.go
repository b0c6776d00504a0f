package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles carried in session tokens.
type UserRole string

const (
	RolePrincipal UserRole = "PRINCIPAL"
	RoleTeacher   UserRole = "TEACHER"
	RoleStudent   UserRole = "STUDENT"
	RoleParent    UserRole = "PARENT"
)

// JWTClaims represents the JWT payload issued by the session service.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	SchoolID string   `json:"school_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
