package models

// User represents an administrator account for the admin API
type User struct {
	BaseModel

	Email        string `json:"email" db:"email"`
	PasswordHash string `json:"-" db:"password_hash"`
	IsAdmin      bool   `json:"isAdmin" db:"is_admin"`
	IsActive     bool   `json:"isActive" db:"is_active"`
}
