package models

import "time"

// Student represents an enrolled student. StudentCode is the stable identifier
// used as the gallery label for face recognition; display names are never used
// for matching because they are not unique and may be edited.
type Student struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	StudentCode string    `json:"student_code" gorm:"uniqueIndex;not null"`
	FullName    string    `json:"full_name" gorm:"not null"`
	ClassroomID uint      `json:"classroom_id" gorm:"index;not null"`
	DateOfBirth *string   `json:"date_of_birth,omitempty"` // YYYY-MM-DD
	IsActive    bool      `json:"is_active" gorm:"default:true;index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Classroom *Classroom     `json:"classroom,omitempty" gorm:"foreignKey:ClassroomID"`
	Images    []StudentImage `json:"images,omitempty" gorm:"foreignKey:StudentID"`
}

func (Student) TableName() string {
	return "students"
}

// StudentImage is one validated enrollment image for a student, stored on disk
// under the student faces directory.
type StudentImage struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	StudentID uint      `json:"student_id" gorm:"index;not null"`
	Path      string    `json:"path" gorm:"not null"`      // absolute path on disk
	FileName  string    `json:"file_name" gorm:"not null"` // original upload name, used for ordering
	TakenAt   *int64    `json:"taken_at,omitempty"`        // Unix timestamp from EXIF, if present
	CreatedAt time.Time `json:"created_at"`

	Student *Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

func (StudentImage) TableName() string {
	return "student_images"
}
