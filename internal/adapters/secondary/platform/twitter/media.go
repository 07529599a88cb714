package twitter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
)

// actionMedia : les endpoints média ont leur propre quota, distinct de celui des tweets.
// Il n'est jamais consulté par le limiteur, seulement enregistré.
const actionMedia domain.ActionType = "media"

type mediaUploadResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type altTextBody struct {
	ID       string `json:"id"`
	Metadata struct {
		AltText struct {
			Text string `json:"text"`
		} `json:"alt_text"`
	} `json:"metadata"`
}

// uploadAll renvoie les media_ids dans l'ordre ; un média déjà envoyé
// pour ce compte pendant le lot est repris depuis le cache.
func (c *Client) uploadAll(ctx context.Context, userID string, media []domain.MediaContent, cache *domain.MediaCache) ([]string, error) {
	ids := make([]string, 0, len(media))
	for _, m := range media {
		id, err := c.upload(ctx, userID, m, cache)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *Client) upload(ctx context.Context, userID string, m domain.MediaContent, cache *domain.MediaCache) (string, error) {
	raw, err := m.Bytes()
	if err != nil {
		return "", domain.NewPlatformError(domain.CodeValidationError, "media data is not valid base64", false)
	}
	digest, err := m.Digest()
	if err != nil {
		return "", domain.NewPlatformError(domain.CodeValidationError, "media data is not valid base64", false)
	}
	if id, ok := cache.Get(domain.PlatformTwitter, userID, digest); ok {
		slog.Debug("Media reused from batch cache", "user_id", userID, "media_id", id)
		return id, nil
	}

	mime := m.MimeType
	if mime == "" {
		mime = http.DetectContentType(raw)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("media_category", mediaCategory(mime))
	_ = w.WriteField("media_type", mime)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="media"; filename="media"`)
	hdr.Set("Content-Type", mime)
	part, err := w.CreatePart(hdr)
	if err != nil {
		return "", fmt.Errorf("multipart: %w", err)
	}
	if _, err := part.Write(raw); err != nil {
		return "", fmt.Errorf("multipart: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("multipart: %w", err)
	}

	var resp mediaUploadResponse
	err = c.do(ctx, request{
		userID:      userID,
		action:      actionMedia,
		method:      http.MethodPost,
		path:        "/2/media/upload",
		body:        &buf,
		contentType: w.FormDataContentType(),
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", domain.NewPlatformError(domain.CodePlatformError, "media upload returned no id", true)
	}

	if m.AltText != "" {
		var body altTextBody
		body.ID = resp.Data.ID
		body.Metadata.AltText.Text = m.AltText
		// alt text facultatif : un échec ne bloque pas la publication
		if err := c.do(ctx, request{userID: userID, action: actionMedia, method: http.MethodPost, path: "/2/media/metadata", body: body}, nil); err != nil {
			slog.Warn("Failed to set media alt text", "user_id", userID, "media_id", resp.Data.ID, "error", err)
		}
	}

	cache.Put(domain.PlatformTwitter, userID, digest, resp.Data.ID)
	return resp.Data.ID, nil
}

func mediaCategory(mime string) string {
	switch {
	case mime == "image/gif":
		return "tweet_gif"
	case strings.HasPrefix(mime, "video/"):
		return "tweet_video"
	default:
		return "tweet_image"
	}
}
