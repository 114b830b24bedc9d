package models

import "time"

type Comment struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	ExperienceID string    `json:"experienceId"`
	Description  string    `json:"description"`
	Likes        []string  `json:"likes"`
	Dislikes     []string  `json:"dislikes"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Reaction kinds stored for comments.
const (
	ReactionLike    = "like"
	ReactionDislike = "dislike"
)

// ToggleResult reports membership after a like or dislike toggle.
type ToggleResult struct {
	Active bool `json:"active"`
	Count  int  `json:"count"`
}
