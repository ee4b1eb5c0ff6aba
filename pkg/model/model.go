// Package model holds the records served by the yote api and cached by its clients.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Task is a unit of work belonging to a flow.
type Task struct {
	ID          string    `json:"_id"`
	User        string    `json:"_user,omitempty"`
	Flow        string    `json:"_flow,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Complete    bool      `json:"complete"`
	Status      string    `json:"status"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
}

func (t Task) GetID() string { return t.ID }

// Note is a comment attached to a task.
type Note struct {
	ID          string     `json:"_id"`
	User        string     `json:"_user,omitempty"`
	Task        string     `json:"_task,omitempty"`
	Flow        string     `json:"_flow,omitempty"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Content     string     `json:"content"`
	Commentor   *Commentor `json:"commentor,omitempty"`
	Created     time.Time  `json:"created"`
	Updated     time.Time  `json:"updated"`
}

func (n Note) GetID() string { return n.ID }

// Commentor is the author summary joined onto notes listed by reference.
type Commentor struct {
	FullName string    `json:"fullName"`
	Created  time.Time `json:"created"`
}

// User is only read by the api, to resolve note authors and roles.
type User struct {
	ID        string    `json:"_id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Roles     []string  `json:"roles"`
	Created   time.Time `json:"created"`
}

func (u User) GetID() string { return u.ID }

func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// NewID returns a fresh record id.
func NewID() string {
	return uuid.NewString()
}

const (
	StatusOpen     = "open"
	StatusActive   = "active"
	StatusResolved = "resolved"
)

// DefaultTask is returned to create forms.
func DefaultTask() Task {
	return Task{Status: StatusOpen}
}

func DefaultNote() Note {
	return Note{}
}
