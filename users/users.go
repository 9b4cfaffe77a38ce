package users

import "time"

// User is the backend-side record of a signed-in principal.
type User struct {
	ID          string    `json:"id"`
	UID         string    `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	AccountType string    `json:"account_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RegisterRequest materializes the backend user after identity sign-up.
type RegisterRequest struct {
	UID         string `json:"uid" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"display_name,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

type UpdateRequest struct {
	DisplayName *string `json:"display_name,omitempty" validate:"omitempty,min=1,max=150"`
	PhotoURL    *string `json:"photo_url,omitempty" validate:"omitempty,url"`
}
