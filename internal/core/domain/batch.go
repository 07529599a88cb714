package domain

import (
	"fmt"
	"strings"
	"time"
)

// ActionResult est la charge utile renvoyée par un exécuteur de plateforme.
type ActionResult struct {
	ID        string     `json:"id,omitempty"`
	URL       string     `json:"url,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	ThreadIDs []string   `json:"threadIds,omitempty"`
	Success   bool       `json:"success"`
}

type SuccessDetail struct {
	Platform PlatformID   `json:"platform"`
	UserID   string       `json:"userId"`
	Status   string       `json:"status"`
	Payload  ActionResult `json:"details"`
}

// BatchOutcome : deux listes ordonnées selon l'ordre de traitement des cibles.
type BatchOutcome struct {
	Successes []SuccessDetail
	Errors    []ErrorDetail
}

func (o BatchOutcome) Total() int { return len(o.Successes) + len(o.Errors) }

// DuplicatePolicy règle le sort des cibles répétées dans une même requête.
type DuplicatePolicy string

const (
	DuplicateAllow  DuplicatePolicy = "allow"
	DuplicateDedupe DuplicatePolicy = "dedupe"
	DuplicateReject DuplicatePolicy = "reject"
)

func ParseDuplicatePolicy(raw string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case DuplicateAllow, DuplicateDedupe, DuplicateReject:
		return p, nil
	case "":
		return DuplicateDedupe, nil
	default:
		return "", fmt.Errorf("unknown duplicate target policy %q", raw)
	}
}

// AccountLink : association signer -> compte plateforme (jamais créée ici).
type AccountLink struct {
	SignerID string
	Platform PlatformID
	UserID   string
	LinkedAt time.Time
}

// Activity est émise après chaque action réussie (leaderboard).
type Activity struct {
	SignerID   string
	Platform   PlatformID
	UserID     string
	ResultID   string
	Action     ActionType
	OccurredAt time.Time
}
