package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/huyng1801/diem-danh/models"
)

// StudentRepository handles database operations for Student entities
type StudentRepository struct {
	DB *gorm.DB
}

var _ StudentRepositoryInterface = (*StudentRepository)(nil)

// NewStudentRepository creates a new instance of StudentRepository
func NewStudentRepository(db *gorm.DB) *StudentRepository {
	return &StudentRepository{DB: db}
}

func (r *StudentRepository) Create(student *models.Student) error {
	if err := r.DB.Create(student).Error; err != nil {
		return fmt.Errorf("failed to create student '%s': %w", student.StudentCode, err)
	}
	return nil
}

func (r *StudentRepository) GetByID(id uint) (*models.Student, error) {
	var student models.Student
	err := r.DB.Preload("Classroom").First(&student, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get student by ID %d: %w", id, err)
	}
	return &student, nil
}

// GetByCode resolves a student by the stable code used as the gallery label.
func (r *StudentRepository) GetByCode(code string) (*models.Student, error) {
	var student models.Student
	err := r.DB.Where("student_code = ?", code).First(&student).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get student by code '%s': %w", code, err)
	}
	return &student, nil
}

func (r *StudentRepository) ListByClassroom(classroomID uint) ([]models.Student, error) {
	var students []models.Student
	err := r.DB.Where("classroom_id = ?", classroomID).Order("student_code ASC").Find(&students).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list students for classroom %d: %w", classroomID, err)
	}
	return students, nil
}

func (r *StudentRepository) ListActiveByClassroom(classroomID uint) ([]models.Student, error) {
	var students []models.Student
	err := r.DB.Where("classroom_id = ? AND is_active = ?", classroomID, true).
		Order("student_code ASC").Find(&students).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active students for classroom %d: %w", classroomID, err)
	}
	return students, nil
}

func (r *StudentRepository) CountActiveByClassroom(classroomID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&models.Student{}).
		Where("classroom_id = ? AND is_active = ?", classroomID, true).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active students for classroom %d: %w", classroomID, err)
	}
	return count, nil
}

// ListActiveWithImages returns every active student with enrollment images
// preloaded; this is the identity set the gallery builder trains from.
func (r *StudentRepository) ListActiveWithImages() ([]models.Student, error) {
	var students []models.Student
	err := r.DB.Where("is_active = ?", true).
		Preload("Images").
		Order("student_code ASC").
		Find(&students).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list students with images: %w", err)
	}
	return students, nil
}

func (r *StudentRepository) Update(student *models.Student) error {
	result := r.DB.Save(student)
	if result.Error != nil {
		return fmt.Errorf("failed to update student ID %d: %w", student.ID, result.Error)
	}
	return nil
}

// Deactivate marks a student inactive; rows are kept for attendance history.
func (r *StudentRepository) Deactivate(id uint) error {
	result := r.DB.Model(&models.Student{}).Where("id = ?", id).Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate student ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
