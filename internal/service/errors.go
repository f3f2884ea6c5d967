package service

import "errors"

// 业务层错误，handler 通过 errors.Is 映射为 HTTP 状态码。
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrServiceUnavailable = errors.New("ai service unavailable")
	ErrStorage            = errors.New("storage failure")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNotFound           = errors.New("not found")
	ErrFeatureDisabled    = errors.New("feature disabled")
)
