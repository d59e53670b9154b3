package media

import (
	"os"

	"remux/internal/services"
)

// LoadDefaultList reads a formats file used when a submission carries no
// media_formats payload. The file holds the same JSON array as the wire
// parameter.
func LoadDefaultList(path string) ([]FormatSpec, error) {
	if path == "" {
		return nil, services.Wrap(services.ErrInvalidRequest, "media", "defaults", "no default formats file configured", nil)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrInvalidRequest, "media", "defaults", path, err)
	}
	formats, err := ParseList(string(raw))
	if err != nil {
		return nil, err
	}
	if err := ValidateList(formats); err != nil {
		return nil, err
	}
	return formats, nil
}
