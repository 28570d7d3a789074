package mapping

import "errors"

var (
	// ErrEmptyProfileName is returned when a profile has a blank name.
	ErrEmptyProfileName = errors.New("mapping profile: empty name")
	// ErrEmptyProfileMappings is returned when a profile maps no columns.
	ErrEmptyProfileMappings = errors.New("mapping profile: no column mappings")
	// ErrUnknownEvidenceType is returned for types outside the catalog.
	ErrUnknownEvidenceType = errors.New("mapping: unknown evidence type")
	// ErrNilProfile is returned when saving a nil profile.
	ErrNilProfile = errors.New("mapping profile: nil profile")
)
