package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Name         string `json:"name"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Bio          string `json:"bio"`
	Avatar       string `json:"avatar"`

	// Presence. Mutated only by the session registry on connection
	// lifecycle transitions; queried by newly subscribing watchers.
	IsOnline bool       `gorm:"default:false" json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// PublicUser is the representation safe to return to other users.
type PublicUser struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Bio      string     `json:"bio"`
	Avatar   string     `json:"avatar"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Name:     u.Name,
		Bio:      u.Bio,
		Avatar:   u.Avatar,
		IsOnline: u.IsOnline,
		LastSeen: u.LastSeen,
	}
}
