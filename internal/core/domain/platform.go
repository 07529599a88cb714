package domain

import (
	"fmt"
	"strings"
)

type PlatformID string

const (
	PlatformTwitter PlatformID = "twitter"
)

var supportedPlatforms = map[PlatformID]struct{}{
	PlatformTwitter: {},
}

func IsSupportedPlatform(p PlatformID) bool {
	_, ok := supportedPlatforms[p]
	return ok
}

// ParsePlatform normalise la saisie client ("X" est un alias de twitter).
func ParsePlatform(raw string) (PlatformID, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "x" {
		v = string(PlatformTwitter)
	}
	p := PlatformID(v)
	if !IsSupportedPlatform(p) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, raw)
	}
	return p, nil
}

// Target identifie un couple (plateforme, compte) visé par une requête.
type Target struct {
	Platform PlatformID `json:"platform" validate:"required"`
	UserID   string     `json:"userId" validate:"required"`
}

func (t Target) Key() string {
	return string(t.Platform) + ":" + t.UserID
}

type ActionType string

const (
	ActionPost   ActionType = "post"
	ActionReply  ActionType = "reply"
	ActionQuote  ActionType = "quote"
	ActionRepost ActionType = "repost"
	ActionLike   ActionType = "like"
	ActionUnlike ActionType = "unlike"
	ActionDelete ActionType = "delete"
)
