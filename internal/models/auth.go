package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims is the identity claim issued by the directory service.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name,omitempty"`
	// Active is resolved from the users table, never from the token.
	Active bool `json:"-"`
	jwt.RegisteredClaims
}

// Actor is the acting identity passed explicitly into every core call.
type Actor struct {
	UserID string
	Role   UserRole
	Active bool
}

// Actor converts verified claims into an actor value.
func (c *JWTClaims) Actor() Actor {
	if c == nil {
		return Actor{}
	}
	return Actor{UserID: c.UserID, Role: c.Role, Active: c.Active}
}

// SystemActor is used by background jobs acting on behalf of an administrator.
func SystemActor(userID string) Actor {
	return Actor{UserID: userID, Role: RoleAdmin, Active: true}
}
