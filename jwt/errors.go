package jwt

import (
	"net/http"

	"github.com/chrlshc/Huntaze-sub010/errcode"
)

const ModuleCode = 28

var (
	ErrTokenMissing = errcode.Register(errcode.New(
		ModuleCode, 1, "jwt", "TOKEN_MISSING", "bearer token missing", http.StatusUnauthorized,
	))
	ErrTokenInvalid = errcode.Register(errcode.New(
		ModuleCode, 2, "jwt", "TOKEN_INVALID", "bearer token invalid", http.StatusUnauthorized,
	))
	ErrTokenExpired = errcode.Register(errcode.New(
		ModuleCode, 3, "jwt", "TOKEN_EXPIRED", "bearer token expired", http.StatusUnauthorized,
	))
	ErrInvalidConfig = errcode.Register(errcode.New(
		ModuleCode, 4, "jwt", "JWT_CONFIG_INVALID", "jwt configuration invalid", http.StatusInternalServerError,
	))
)
