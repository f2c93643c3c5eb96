// Package response writes the JSON envelope shared by all HTTP handlers.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// OK writes 200 with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created writes 201 with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// Fail writes an error envelope with a machine-readable code.
func Fail(c *gin.Context, status int, code, msg string) {
	c.JSON(status, Body{Success: false, Error: msg, Code: code})
}

// BadRequest writes 400.
func BadRequest(c *gin.Context, msg string) {
	Fail(c, http.StatusBadRequest, "bad_request", msg)
}

// Unauthorized writes 401.
func Unauthorized(c *gin.Context, msg string) {
	Fail(c, http.StatusUnauthorized, "unauthorized", msg)
}

// Forbidden writes 403.
func Forbidden(c *gin.Context, msg string) {
	Fail(c, http.StatusForbidden, "forbidden", msg)
}

// NotFound writes 404.
func NotFound(c *gin.Context, msg string) {
	Fail(c, http.StatusNotFound, "not_found", msg)
}

// Internal writes 500.
func Internal(c *gin.Context, msg string) {
	Fail(c, http.StatusInternalServerError, "internal", msg)
}
