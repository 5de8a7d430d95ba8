package descriptor

import (
	"fmt"
	"strings"
)

// ContentType governs whether installed content may be replaced, must be
// kept, or is adapted during an update.
type ContentType string

const (
	Immutable     ContentType = "IMMUTABLE"
	Data          ContentType = "DATA"
	Configuration ContentType = "CONFIGURATION"
	Unspecified   ContentType = "UNSPECIFIED"
)

// ParseContentType accepts the marker names case-insensitively. "STATIC" is
// an alias of IMMUTABLE and the empty string means UNSPECIFIED.
func ParseContentType(value string) (ContentType, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "":
		return Unspecified, nil
	case string(Immutable), "STATIC":
		return Immutable, nil
	case string(Data):
		return Data, nil
	case string(Configuration):
		return Configuration, nil
	case string(Unspecified):
		return Unspecified, nil
	default:
		return "", fmt.Errorf("unknown content type %q", value)
	}
}

// OrDefault maps the zero value to UNSPECIFIED.
func (c ContentType) OrDefault() ContentType {
	if c == "" {
		return Unspecified
	}
	return c
}

// NeedsBackup reports whether an orphaned directory with this marker is moved
// to the backup location instead of deleted. UNSPECIFIED is treated like
// DATA.
func (c ContentType) NeedsBackup() bool {
	switch c.OrDefault() {
	case Data, Unspecified:
		return true
	default:
		return false
	}
}

// UnmarshalText validates the value while decoding.
func (c *ContentType) UnmarshalText(text []byte) error {
	parsed, err := ParseContentType(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
