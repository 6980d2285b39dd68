package service

import "errors"

var (
	ErrBoardNotFound   = errors.New("board not found")
	ErrSectionNotFound = errors.New("section not found")
	ErrCodeGeneration  = errors.New("failed to generate a unique board code")
	ErrInternalServer  = errors.New("internal server error")
)
