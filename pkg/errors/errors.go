package errors

import (
	stderrors "errors"
	"fmt"
)

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 危机评估相关错误。
var (
	ValidationFailed      = Definition{Code: "VALIDATION_ERROR", Message: "Validation error"}
	RateLimited           = Definition{Code: "RATE_LIMITED", Message: "Too many requests. Please try again later, or call 988 now if you need help."}
	DependencyUnavailable = Definition{Code: "DEPENDENCY_UNAVAILABLE", Message: "Dependency unavailable"}
	InternalError         = Definition{Code: "INTERNAL_ERROR", Message: "An error occurred, but help is available"}
)

// 认证与资源访问错误。
var (
	Unauthorized          = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	Forbidden             = Definition{Code: "FORBIDDEN", Message: "Forbidden"}
	InterventionNotFound  = Definition{Code: "INTERVENTION_NOT_FOUND", Message: "Intervention not found"}
	InvalidInterventionID = Definition{Code: "INVALID_INTERVENTION_ID", Message: "Invalid intervention ID format"}
)

// 基础设施错误。
var (
	ErrTokenGeneratorNotInitialized = stderrors.New("token generator not initialized")
	ErrInvalidToken                 = stderrors.New("invalid token")
	ErrInvalidTokenClaims           = stderrors.New("invalid token claims")
	ErrUnexpectedSigningMethod      = stderrors.New("unexpected signing method")
	ErrUserIDNotFound               = stderrors.New("user id not found in token")
	ErrSignNameRequired             = stderrors.New("sms sign name is required")
	ErrTemplateCodeRequired         = stderrors.New("sms template code is required")
	ErrCollaboratorTimeout          = stderrors.New("collaborator timed out")
)

// DependencyError 表示外部协作方（存储、通知、调度）失败。
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() []error {
	return []error{DependencyUnavailable, e.Err}
}

// NewDependencyError 包装协作方错误，nil 返回 nil。
func NewDependencyError(dependency string, err error) error {
	if err == nil {
		return nil
	}
	return &DependencyError{Dependency: dependency, Err: err}
}

// SkipMessageError 表示消息已处理过，消费者应直接 ack。
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return e.Reason
}

// As 从错误链中提取 Definition。
func As(err error) (Definition, bool) {
	var def Definition
	if stderrors.As(err, &def) {
		return def, true
	}
	return Definition{}, false
}
