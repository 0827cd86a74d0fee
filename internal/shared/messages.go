package shared

import "errors"

// UserSafeMessage converts internal errors into messages suitable for
// API consumers, hiding infrastructure detail.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrNotFound) {
		return "The requested resource was not found"
	}
	if errors.Is(err, ErrInvalidCredentials) {
		return "Email or password is not valid"
	}
	if errors.Is(err, ErrIdempotencyConflict) {
		return "This request was already processed"
	}
	return err.Error()
}
