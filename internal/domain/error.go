package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrAlreadyExists    = errors.New("entity already exists")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnknownField     = errors.New("unknown draft field")
	ErrSuperseded       = errors.New("generation superseded by a newer run")
	ErrNoCredentials    = errors.New("no model credentials configured")
	ErrUploadFailed     = errors.New("image upload failed")
	ErrUnsupportedImage = errors.New("unsupported image data")
)
