package auth

import "errors"

var (
	ErrInvalidConfig           = errors.New("invalid auth configuration")
	ErrTokenExpired            = errors.New("token has expired")
	ErrTokenInvalid            = errors.New("token is invalid")
	ErrTokenMalformed          = errors.New("token is malformed")
	ErrUnexpectedSigningMethod = errors.New("unexpected signing method")
	ErrNonceInvalid            = errors.New("anti-forgery nonce is invalid")
)
