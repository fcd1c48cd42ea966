package domain

import (
	"errors"
	"fmt"
)

// ProviderError is returned when the weather provider answers with a non-success status.
// Message carries the provider's own explanation and may be empty.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("weather provider returned status %d", e.Status)
	}
	return fmt.Sprintf("weather provider returned status %d: %s", e.Status, e.Message)
}

// GeolocationError is a position lookup failure with a user-facing message
type GeolocationError struct {
	Message string
}

func (e *GeolocationError) Error() string {
	return "geolocation: " + e.Message
}

// FailureMessage extracts the user-facing message carried by err, or "" when it has none
func FailureMessage(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Message
	}
	var ge *GeolocationError
	if errors.As(err, &ge) {
		return ge.Message
	}
	return ""
}
