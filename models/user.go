package models

import "time"

// User is a dashboard user allowed to trigger calls and browse results.
type User struct {
	ID        string    `json:"_id" bson:"_id"`
	Email     string    `json:"email" bson:"email"`
	Name      string    `json:"name" bson:"name"`
	Password  string    `json:"-" bson:"password"`
	Active    bool      `json:"active" bson:"active"`
	CreatedAt time.Time `json:"created_at" bson:"createdAt"`
}
