package utils

import "github.com/gin-gonic/gin"

// JSONResponse defines the uniform structure for successful API responses.
type JSONResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse defines the uniform structure for failed API responses.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// Respond writes a success envelope with the given status code.
func Respond(ctx *gin.Context, status int, message string, data interface{}) {
	ctx.JSON(status, JSONResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Success returns a standard 200 response.
func Success(ctx *gin.Context, data interface{}) {
	Respond(ctx, 200, "", data)
}

// Fail writes the error envelope.
func Fail(ctx *gin.Context, status int, code string, message string) {
	ctx.JSON(status, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

// AbortWithError writes the error envelope and stops the handler chain.
func AbortWithError(ctx *gin.Context, status int, code string, message string) {
	Fail(ctx, status, code, message)
	ctx.Abort()
}
