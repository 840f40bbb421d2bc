package models

import "time"

// Course and Enrollment are owned by the catalog subsystem. The live-session
// service reads them only to answer membership questions; it never writes them.

// Course mirrors the catalog's course table.
type Course struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:200;not null" json:"title"`
	TeacherID string    `gorm:"size:64;index;not null" json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Enrollment statuses used by the catalog.
const (
	EnrollmentActive    = "active"
	EnrollmentCompleted = "completed"
	EnrollmentDropped   = "dropped"
)

// Enrollment mirrors the catalog's student/course membership table.
type Enrollment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CourseID  uint      `gorm:"index;not null;uniqueIndex:idx_course_student" json:"course_id"`
	StudentID string    `gorm:"size:64;not null;uniqueIndex:idx_course_student" json:"student_id"`
	Status    string    `gorm:"size:12;not null;default:active" json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
