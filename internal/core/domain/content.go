package domain

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

type PostContent struct {
	Text  string         `json:"text"`
	Media []MediaContent `json:"media,omitempty" validate:"omitempty,max=4,dive"`
}

// MediaContent transporte un média encodé en base64 (data URI toléré).
type MediaContent struct {
	Data     string `json:"data" validate:"required"`
	MimeType string `json:"mimeType,omitempty"`
	AltText  string `json:"altText,omitempty"`
}

// Bytes décode la charge base64, préfixe "data:...;base64," compris.
func (m MediaContent) Bytes() ([]byte, error) {
	raw := m.Data
	if i := strings.Index(raw, ";base64,"); strings.HasPrefix(raw, "data:") && i >= 0 {
		raw = raw[i+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(raw)
}

// Digest identifie le contenu d'un média indépendamment de son encodage.
func (m MediaContent) Digest() (string, error) {
	b, err := m.Bytes()
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// MediaCache évite de ré-uploader un média identique pendant UN lot.
// Une instance par appel d'orchestrateur, jamais partagée entre requêtes.
type MediaCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func NewMediaCache() *MediaCache {
	return &MediaCache{entries: make(map[string]string)}
}

func mediaKey(platform PlatformID, userID, digest string) string {
	return string(platform) + ":" + userID + ":" + digest
}

func (c *MediaCache) Get(platform PlatformID, userID, digest string) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.entries[mediaKey(platform, userID, digest)]
	return id, ok
}

func (c *MediaCache) Put(platform PlatformID, userID, digest, mediaID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[mediaKey(platform, userID, digest)] = mediaID
}

func (c *MediaCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MediaCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}
