package traildb

import "github.com/google/uuid"

// ParseUUID parses a textual uuid (canonical or bare 32-digit hex form)
// into the raw 16-byte identifier used as a trail key.
func ParseUUID(s string) ([16]byte, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return [16]byte{}, ErrInvalidUuid
	}
	return u, nil
}

// FormatUUID renders a raw 16-byte identifier in canonical hex form.
func FormatUUID(raw [16]byte) string {
	return uuid.UUID(raw).String()
}
