package models

import (
	"fmt"
	"time"
)

// User is a listener whose history the engine manages.
type User struct {
	id        string
	mode      DataSourceMode
	createdAt time.Time
	updatedAt time.Time
}

// NewUser creates a user in [ModeLiveOnly].
func NewUser(id string) *User {
	now := time.Now().UTC()
	return &User{id: id, mode: ModeLiveOnly, createdAt: now, updatedAt: now}
}

func (u *User) ID() string           { return u.id }
func (u *User) Mode() DataSourceMode { return u.mode }
func (u *User) CreatedAt() time.Time { return u.createdAt }
func (u *User) UpdatedAt() time.Time { return u.updatedAt }

func (u *User) SetMode(m DataSourceMode) { u.mode = m }
func (u *User) SetCreatedAt(t time.Time) { u.createdAt = t }
func (u *User) SetUpdatedAt(t time.Time) { u.updatedAt = t }

// Validate checks that the user has an id and a known mode.
func (u *User) Validate() error {
	if u.id == "" {
		return fmt.Errorf("user id is required")
	}
	if _, err := ParseDataSourceMode(string(u.mode)); err != nil {
		return err
	}
	return nil
}
