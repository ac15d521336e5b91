// Package auth guards the learning API's admin operations with HS256 bearer
// tokens. There are no user accounts: tokens are minted offline by an operator.
package auth

// OperatorClaims are the custom claims carried by an operator token
type OperatorClaims struct {
	Subject string `json:"sub_name"`
	IsAdmin bool   `json:"is_admin"`
}

// AuthError is returned to API clients as {"error": Code, "message": Message}
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e AuthError) Error() string {
	return e.Message
}

var (
	ErrInvalidToken = AuthError{Code: "INVALID_TOKEN", Message: "invalid or expired token"}
	ErrTokenExpired = AuthError{Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrUnauthorized = AuthError{Code: "UNAUTHORIZED", Message: "unauthorized access"}
	ErrForbidden    = AuthError{Code: "FORBIDDEN", Message: "access forbidden"}
	ErrNoSecret     = AuthError{Code: "NO_SECRET", Message: "jwt secret is not configured"}
)
