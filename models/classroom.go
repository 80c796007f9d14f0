package models

import "time"

// Classroom represents one homeroom class within an academic year.
type Classroom struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Name         string    `json:"name" gorm:"not null;uniqueIndex:idx_class_year"`
	Grade        string    `json:"grade" gorm:"not null"`
	AcademicYear string    `json:"academic_year" gorm:"not null;uniqueIndex:idx_class_year"` // YYYY-YYYY
	TeacherID    *uint     `json:"teacher_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Students []Student `json:"students,omitempty" gorm:"foreignKey:ClassroomID"`
}

func (Classroom) TableName() string {
	return "classrooms"
}
