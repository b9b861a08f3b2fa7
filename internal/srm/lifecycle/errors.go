package lifecycle

import (
	"errors"
	"fmt"
)

// 状态契约错误：调用方在错误的状态或没有相应能力时触发
var (
	ErrForbidden       = errors.New("operation not permitted")
	ErrInvalidState    = errors.New("invalid lifecycle state for operation")
	ErrNotDirty        = errors.New("no changes to save")
	ErrConfirmRequired = errors.New("delete confirmation required")
)

// ValidationError 校验错误：在任何存储调用之前拦截，什么都不会被持久化
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// IsValidation 判断是否为校验错误
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
