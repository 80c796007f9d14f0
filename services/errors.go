package services

import "errors"

var (
	// ErrGalleryNotLoaded is fatal to Recognize until a gallery has been built
	// or loaded; recognition never trains implicitly.
	ErrGalleryNotLoaded = errors.New("face gallery not loaded")

	// ErrLowConfidence marks a recognized match that cleared the label
	// threshold but not the stricter write-to-attendance threshold.
	ErrLowConfidence = errors.New("match confidence below record threshold")

	ErrSessionNotFound  = errors.New("attendance session not found")
	ErrSessionFinalized = errors.New("attendance session already finalized")
	ErrStudentNotFound  = errors.New("student not found")
	ErrStudentInactive  = errors.New("student is not active")

	ErrInvalidStatus      = errors.New("invalid attendance status")
	ErrInvalidSessionType = errors.New("invalid session type")
	ErrInvalidConfidence  = errors.New("confidence must be within [0,1]")
)
