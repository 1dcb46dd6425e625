package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"
)

// Response is the JSON envelope of every API reply
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// SuccessResponse writes a 200 envelope around data
func SuccessResponse(w http.ResponseWriter, data interface{}, requestID string) {
	writeResponse(w, http.StatusOK, "success", data, requestID)
}

// CreatedResponse writes a 201 envelope around data
func CreatedResponse(w http.ResponseWriter, data interface{}, requestID string) {
	writeResponse(w, http.StatusCreated, "created", data, requestID)
}

func writeResponse(w http.ResponseWriter, status int, message string, data interface{}, requestID string) {
	httpx.WriteJson(w, status, Response{
		Code:      0,
		Message:   message,
		Data:      data,
		RequestID: requestID,
	})
}

// ErrorResponse writes an error envelope whose code is the HTTP status
func ErrorResponse(w http.ResponseWriter, statusCode int, message string, requestID string) {
	httpx.WriteJson(w, statusCode, Response{
		Code:      statusCode,
		Message:   message,
		RequestID: requestID,
	})
}

// BadRequestResponse 400
func BadRequestResponse(w http.ResponseWriter, message string, requestID string) {
	ErrorResponse(w, http.StatusBadRequest, message, requestID)
}

// UnauthorizedResponse 401
func UnauthorizedResponse(w http.ResponseWriter, message string, requestID string) {
	ErrorResponse(w, http.StatusUnauthorized, message, requestID)
}

// NotFoundResponse 404
func NotFoundResponse(w http.ResponseWriter, message string, requestID string) {
	ErrorResponse(w, http.StatusNotFound, message, requestID)
}

// InternalServerErrorResponse 500
func InternalServerErrorResponse(w http.ResponseWriter, message string, requestID string) {
	ErrorResponse(w, http.StatusInternalServerError, message, requestID)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	httpx.WriteJson(w, status, v)
}
