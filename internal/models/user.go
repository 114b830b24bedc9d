package models

import "time"

type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	PhoneNumber    string    `json:"phoneNumber"`
	ProfilePicture string    `json:"profilePicture"`
	Country        string    `json:"country"`
	City           string    `json:"city"`
	Province       string    `json:"province"`
	Zip            string    `json:"zip"`
	Street         string    `json:"street"`
	Description    string    `json:"description"`
	IsVerified     bool      `json:"isVerified"`
	IsActive       bool      `json:"isActive"`
	EmailToken     string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// PublicProfile is what other users see about an owner.
type PublicProfile struct {
	ID             string `json:"id"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	ProfilePicture string `json:"profilePicture"`
	Description    string `json:"description"`
	City           string `json:"city"`
	Country        string `json:"country"`
}

func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:             u.ID,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		ProfilePicture: u.ProfilePicture,
		Description:    u.Description,
		City:           u.City,
		Country:        u.Country,
	}
}

// Session is a refresh-token record. Only the token hash is stored.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
