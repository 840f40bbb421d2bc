package access

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/darsy-app/darsy-live-api/internal/models"
)

// Oracle answers membership and role questions for the course catalog. The
// realtime and REST handlers consult it before granting room, message or
// reaction access; it is the only view this service has into enrollment data.
type Oracle interface {
	IsEnrolled(ctx context.Context, userID string, courseID uint) (bool, error)
	IsTeacherOf(ctx context.Context, userID string, courseID uint) (bool, error)
	ActiveCourseIDs(ctx context.Context, userID string) ([]uint, error)
}

type gormOracle struct {
	db *gorm.DB
}

// NewOracle builds an Oracle reading the catalog tables directly.
func NewOracle(db *gorm.DB) Oracle {
	return &gormOracle{db: db}
}

func (o *gormOracle) IsEnrolled(ctx context.Context, userID string, courseID uint) (bool, error) {
	var count int64
	err := o.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("course_id = ? AND student_id = ? AND status = ?", courseID, userID, models.EnrollmentActive).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (o *gormOracle) IsTeacherOf(ctx context.Context, userID string, courseID uint) (bool, error) {
	var course models.Course
	err := o.db.WithContext(ctx).First(&course, courseID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return course.TeacherID == userID, nil
}

func (o *gormOracle) ActiveCourseIDs(ctx context.Context, userID string) ([]uint, error) {
	var ids []uint
	err := o.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("student_id = ? AND status = ?", userID, models.EnrollmentActive).
		Pluck("course_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
