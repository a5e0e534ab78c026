package models

import "time"

// ClassInfo models a class (form/homeroom unit) within the school.
// ClassTeacherID designates the class teacher; a class has at most one,
// while a teacher may be class teacher of any number of classes.
type ClassInfo struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Level          string    `db:"level" json:"level"`
	Stream         *string   `db:"stream" json:"stream,omitempty"`
	ClassTeacherID *string   `db:"class_teacher_id" json:"class_teacher_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Subject identifies a taught subject.
type Subject struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      *string   `db:"code" json:"code,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Student belongs to exactly one class.
type Student struct {
	ID        string    `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	ClassID   string    `db:"class_id" json:"class_id"`
	Stream    *string   `db:"stream" json:"stream,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
