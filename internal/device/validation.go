package device

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Validation constants.
const (
	// Matter's NodeLabel attribute is limited to 32 bytes.
	maxNameLength     = 32
	maxSlugLength     = 50
	maxLabelLength    = 32
	maxConfigKeys     = 50
	maxStringValueLen = 1024
	slugPattern       = `^[a-z0-9]+(?:-[a-z0-9]+)*$`
)

var slugRegex = regexp.MustCompile(slugPattern)

// ValidateDevice returns the first problem found with d. An empty slug is
// allowed; CreateDevice generates one.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if d.Slug != "" {
		if err := ValidateSlug(d.Slug); err != nil {
			return err
		}
	}
	if err := ValidateDeviceType(d.Type); err != nil {
		return err
	}

	labels := []struct {
		field string
		value *string
	}{
		{"location", d.Location},
		{"vendor_name", d.VendorName},
		{"product_name", d.ProductName},
	}
	for _, l := range labels {
		if l.value == nil {
			continue
		}
		if err := checkLabel(*l.value, maxLabelLength); err != nil {
			return fmt.Errorf("%w: %s %s", ErrInvalidLabel, l.field, err)
		}
	}

	return validateConfig(d.Config)
}

// ValidateName checks a device name, which becomes the endpoint's Matter
// NodeLabel: non-blank, at most 32 bytes of printable UTF-8.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if err := checkLabel(strings.TrimSpace(name), maxNameLength); err != nil {
		return fmt.Errorf("%w: name %s", ErrInvalidName, err)
	}
	return nil
}

// ValidateSlug checks if a slug format is valid.
func ValidateSlug(slug string) error {
	switch {
	case slug == "":
		return fmt.Errorf("%w: slug cannot be empty", ErrInvalidSlug)
	case len(slug) > maxSlugLength:
		return fmt.Errorf("%w: slug exceeds %d characters", ErrInvalidSlug, maxSlugLength)
	case !slugRegex.MatchString(slug):
		return fmt.Errorf("%w: slug must be lowercase alphanumeric with hyphens", ErrInvalidSlug)
	}
	return nil
}

// ValidateDeviceType checks that a device type has a Matter profile.
func ValidateDeviceType(t DeviceType) error {
	if _, ok := profiles[t]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidDeviceType, t)
}

// checkLabel describes why s cannot be stored in a Matter string attribute
// of limit bytes, or returns nil.
func checkLabel(s string, limit int) error {
	if len(s) > limit {
		return fmt.Errorf("exceeds %d bytes", limit)
	}
	if !utf8.ValidString(s) {
		return errors.New("is not valid UTF-8")
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return errors.New("contains control characters")
		}
	}
	return nil
}

func validateConfig(c Config) error {
	if len(c) > maxConfigKeys {
		return fmt.Errorf("%w: exceeds max keys (%d)", ErrInvalidConfig, maxConfigKeys)
	}
	for k, v := range c {
		if s, ok := v.(string); ok && len(s) > maxStringValueLen {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidConfig, k, maxStringValueLen)
		}
	}
	return nil
}

// GenerateSlug derives a slug from a name. Spaces, underscores and hyphens
// separate words; other characters outside [a-z0-9] are dropped. A name with
// nothing usable gets "device-" plus a random suffix.
func GenerateSlug(name string) string {
	var b strings.Builder
	pendingSep := false

	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == ' ', r == '_', r == '-':
			pendingSep = true
		}
		if b.Len() >= maxSlugLength {
			break
		}
	}

	slug := b.String()
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		slug = "device-" + strings.SplitN(GenerateID(), "-", 2)[0]
	}
	return slug
}

// GenerateID creates a new unique device ID.
func GenerateID() string {
	return uuid.NewString()
}
