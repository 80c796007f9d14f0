package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/huyng1801/diem-danh/models"
)

// StudentImageRepository handles database operations for enrollment images
type StudentImageRepository struct {
	DB *gorm.DB
}

var _ StudentImageRepositoryInterface = (*StudentImageRepository)(nil)

// NewStudentImageRepository creates a new instance of StudentImageRepository
func NewStudentImageRepository(db *gorm.DB) *StudentImageRepository {
	return &StudentImageRepository{DB: db}
}

func (r *StudentImageRepository) Create(image *models.StudentImage) error {
	if err := r.DB.Create(image).Error; err != nil {
		return fmt.Errorf("failed to create enrollment image for student %d: %w", image.StudentID, err)
	}
	return nil
}

func (r *StudentImageRepository) ListByStudentID(studentID uint) ([]models.StudentImage, error) {
	var images []models.StudentImage
	err := r.DB.Where("student_id = ?", studentID).Order("file_name ASC").Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollment images for student %d: %w", studentID, err)
	}
	return images, nil
}

func (r *StudentImageRepository) CountByStudentID(studentID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&models.StudentImage{}).Where("student_id = ?", studentID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count enrollment images for student %d: %w", studentID, err)
	}
	return count, nil
}

func (r *StudentImageRepository) Delete(id uint) error {
	result := r.DB.Delete(&models.StudentImage{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete enrollment image ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
