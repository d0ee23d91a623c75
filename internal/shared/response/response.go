package response

import (
	"github.com/gin-gonic/gin"

	"paygate-backend/internal/shared/errcodes"
)

// Response is the admin/internal API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type Meta struct {
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
	Total int `json:"total,omitempty"`
}

// Merchant is the merchant-facing API envelope. Unlike the admin
// envelope it always answers HTTP 200 and signals failures through
// ErrorCode, matching what merchant SDKs expect.
type Merchant struct {
	Success    bool        `json:"Success"`
	Status     string      `json:"Status,omitempty"`
	PaymentID  string      `json:"PaymentId,omitempty"`
	OrderID    string      `json:"OrderId,omitempty"`
	Amount     int64       `json:"Amount,omitempty"`
	PaymentURL string      `json:"PaymentURL,omitempty"`
	ErrorCode  string      `json:"ErrorCode"`
	Message    string      `json:"Message,omitempty"`
	Details    interface{} `json:"Details,omitempty"`
}

// Success responses

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
	})
}

func SuccessWithMeta(c *gin.Context, statusCode int, data interface{}, meta *Meta) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// Error responses

func ErrorResponse(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}

func ErrorWithDetails(c *gin.Context, statusCode int, code, message string, details interface{}) {
	c.JSON(statusCode, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// Common error responses

func BadRequest(c *gin.Context, message string) {
	ErrorResponse(c, 400, "BAD_REQUEST", message)
}

func Unauthorized(c *gin.Context, message string) {
	ErrorResponse(c, 401, "UNAUTHORIZED", message)
}

func Forbidden(c *gin.Context, message string) {
	ErrorResponse(c, 403, "FORBIDDEN", message)
}

func NotFound(c *gin.Context, message string) {
	ErrorResponse(c, 404, "NOT_FOUND", message)
}

func InternalServerError(c *gin.Context, message string) {
	ErrorResponse(c, 500, "INTERNAL_SERVER_ERROR", message)
}

// Merchant responses

// MerchantError answers a merchant request with a failure envelope.
// Language is taken from the Accept-Language header, defaulting to en.
func MerchantError(c *gin.Context, code string, details interface{}) {
	lang := "en"
	if c.GetHeader("Accept-Language") == "ru" {
		lang = "ru"
	}
	c.JSON(200, Merchant{
		Success:   false,
		Status:    "ERROR",
		ErrorCode: code,
		Message:   errcodes.Message(code, lang),
		Details:   details,
	})
}

// MerchantSuccess answers a merchant request with a populated envelope.
func MerchantSuccess(c *gin.Context, body Merchant) {
	body.Success = true
	if body.ErrorCode == "" {
		body.ErrorCode = errcodes.Success
	}
	c.JSON(200, body)
}
