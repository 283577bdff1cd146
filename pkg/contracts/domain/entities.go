package domain

import "time"

// Student is a row of the students table.
type Student struct {
	ID        int64    `json:"id" db:"id"`
	Name      string   `json:"student_name" db:"student_name" validate:"required"`
	StudentID *int64   `json:"student_id,omitempty" db:"student_id"`
	Age       *float64 `json:"age,omitempty" db:"age"`
}

// Teacher is a row of the teachers table.
type Teacher struct {
	ID      int64  `json:"id" db:"id"`
	Name    string `json:"teacher_name" db:"teacher_name" validate:"required"`
	Subject string `json:"subject" db:"subject"`
	City    string `json:"city" db:"city"`
}

// Group is a row of the groups table.
type Group struct {
	ID        int64      `json:"id" db:"id"`
	Name      string     `json:"group_name" db:"group_name" validate:"required"`
	GroupID   *int64     `json:"group_id,omitempty" db:"group_id"`
	StartDate *time.Time `json:"start_date,omitempty" db:"start_date"`
}

// LossFact links a lost student to the teacher and group they left.
// All three references must resolve before a fact is stored.
type LossFact struct {
	ID               int64    `json:"id" db:"id"`
	StudentRef       int64    `json:"student_id" db:"student_id" validate:"required"`
	TeacherRef       int64    `json:"teacher_id" db:"teacher_id" validate:"required"`
	GroupRef         int64    `json:"group_id" db:"group_id" validate:"required"`
	AttendanceNumber *float64 `json:"attendance_number,omitempty" db:"attendance_number"`
	LostReasons      string   `json:"lost_reasons" db:"lost_reasons"`
}
