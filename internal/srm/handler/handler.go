package handler

import (
	"github.com/bitfantasy/vendo/internal/srm/lifecycle"
	"github.com/bitfantasy/vendo/internal/srm/service"
	"github.com/gin-gonic/gin"
)

// Handlers SRM处理器集合
type Handlers struct {
	Supplier   *SupplierHandler
	Evaluation *EvaluationHandler
}

// NewHandlers 创建SRM处理器集合
func NewHandlers(svcs *service.Services) *Handlers {
	return &Handlers{
		Supplier:   NewSupplierHandler(svcs.Supplier),
		Evaluation: NewEvaluationHandler(svcs.Evaluation),
	}
}

// === 响应辅助函数 ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// hasPermission 检查JWT claims中的权限，"*" 为超级权限
func hasPermission(c *gin.Context, permission string) bool {
	value, exists := c.Get("permissions")
	if !exists {
		return false
	}
	perms, ok := value.([]string)
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission || p == "*" {
			return true
		}
	}
	return false
}

// GetCapabilities 把权限声明折算成生命周期控制器消费的能力开关
func GetCapabilities(c *gin.Context) lifecycle.Capabilities {
	return lifecycle.Capabilities{
		CanCreate: hasPermission(c, "srm:evaluation:create"),
		CanView:   hasPermission(c, "srm:evaluation:read"),
		CanEdit:   hasPermission(c, "srm:evaluation:edit"),
		CanDelete: hasPermission(c, "srm:evaluation:delete"),
	}
}
