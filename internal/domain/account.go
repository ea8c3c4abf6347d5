package domain

import (
	"fmt"
	"strings"
	"time"
)

type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformTwitter   Platform = "twitter"
)

// Platforms lists every monitored platform.
var Platforms = []Platform{PlatformInstagram, PlatformFacebook, PlatformTwitter}

func (p Platform) Valid() bool {
	switch p {
	case PlatformInstagram, PlatformFacebook, PlatformTwitter:
		return true
	}
	return false
}

// ParsePlatform normalizes a user-supplied platform name.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown platform %q", s)
	}
	return p, nil
}

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
)

// Account is a monitored social media presence. Accounts are read-mostly
// reference data synced from configuration at startup; agents never
// mutate them.
type Account struct {
	ID          string
	Country     string
	Platform    Platform
	Handle      string
	DisplayName string
	Status      AccountStatus
	Notes       string
	CreatedAt   time.Time
}

func (a Account) Active() bool {
	return a.Status == AccountStatusActive
}

// AccountID builds the stable identifier used across collections, so the
// same handle always maps to the same stored rows.
func AccountID(country string, platform Platform, handle string) string {
	return strings.ToLower(fmt.Sprintf("%s_%s_%s", country, platform, handle))
}
