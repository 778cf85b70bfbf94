package domain

import "time"

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleEmployee Role = "EMPLOYEE"
	RoleClient   Role = "CLIENT"
)

type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Phone          string    `json:"phone,omitempty"`
	Role           Role      `json:"role"`
	FidelityPoints int64     `json:"fidelityPoints"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Actor is whoever a request runs on behalf of.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}
