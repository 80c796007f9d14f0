package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/huyng1801/diem-danh/models"
)

// ClassroomRepository handles database operations for Classroom entities
type ClassroomRepository struct {
	DB *gorm.DB
}

var _ ClassroomRepositoryInterface = (*ClassroomRepository)(nil)

// NewClassroomRepository creates a new instance of ClassroomRepository
func NewClassroomRepository(db *gorm.DB) *ClassroomRepository {
	return &ClassroomRepository{DB: db}
}

func (r *ClassroomRepository) Create(classroom *models.Classroom) error {
	if err := r.DB.Create(classroom).Error; err != nil {
		return fmt.Errorf("failed to create classroom '%s': %w", classroom.Name, err)
	}
	return nil
}

func (r *ClassroomRepository) GetByID(id uint) (*models.Classroom, error) {
	var classroom models.Classroom
	err := r.DB.First(&classroom, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get classroom by ID %d: %w", id, err)
	}
	return &classroom, nil
}

func (r *ClassroomRepository) ListAll() ([]models.Classroom, error) {
	var classrooms []models.Classroom
	if err := r.DB.Order("academic_year DESC, name ASC").Find(&classrooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list classrooms: %w", err)
	}
	return classrooms, nil
}

func (r *ClassroomRepository) Update(classroom *models.Classroom) error {
	result := r.DB.Save(classroom)
	if result.Error != nil {
		return fmt.Errorf("failed to update classroom ID %d: %w", classroom.ID, result.Error)
	}
	return nil
}

func (r *ClassroomRepository) Delete(id uint) error {
	result := r.DB.Delete(&models.Classroom{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete classroom ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
