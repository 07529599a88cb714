package twitter

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
)

type tweetBody struct {
	Text         string     `json:"text,omitempty"`
	QuoteTweetID string     `json:"quote_tweet_id,omitempty"`
	Reply        *replyBody `json:"reply,omitempty"`
	Media        *mediaBody `json:"media,omitempty"`
}

type replyBody struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type mediaBody struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

type tweetIDBody struct {
	TweetID string `json:"tweet_id"`
}

type flagResponse struct {
	Data map[string]bool `json:"data"`
}

func (c *Client) CreatePost(ctx context.Context, userID string, content []domain.PostContent, media *domain.MediaCache) (domain.ActionResult, error) {
	return c.thread(ctx, userID, domain.ActionPost, content, media, func(b *tweetBody) {})
}

func (c *Client) ReplyToPost(ctx context.Context, userID, postID string, content []domain.PostContent, media *domain.MediaCache) (domain.ActionResult, error) {
	return c.thread(ctx, userID, domain.ActionReply, content, media, func(b *tweetBody) {
		b.Reply = &replyBody{InReplyToTweetID: postID}
	})
}

func (c *Client) QuotePost(ctx context.Context, userID, postID string, content []domain.PostContent, media *domain.MediaCache) (domain.ActionResult, error) {
	return c.thread(ctx, userID, domain.ActionQuote, content, media, func(b *tweetBody) {
		b.QuoteTweetID = postID
	})
}

// thread publie content[0] (ajusté par first) puis chaque élément suivant
// en réponse au précédent. Un échec en cours de fil conserve les ids publiés.
func (c *Client) thread(ctx context.Context, userID string, action domain.ActionType, content []domain.PostContent, media *domain.MediaCache, first func(*tweetBody)) (domain.ActionResult, error) {
	if len(content) == 0 {
		return domain.ActionResult{}, domain.NewPlatformError(domain.CodeValidationError, "at least one content item is required", false)
	}

	ids := make([]string, 0, len(content))
	for i, item := range content {
		body := tweetBody{Text: item.Text}
		if i == 0 {
			first(&body)
		} else {
			body.Reply = &replyBody{InReplyToTweetID: ids[i-1]}
		}

		if len(item.Media) > 0 {
			mediaIDs, err := c.uploadAll(ctx, userID, item.Media, media)
			if err != nil {
				return domain.ActionResult{}, partial(err, ids)
			}
			body.Media = &mediaBody{MediaIDs: mediaIDs}
		}

		var resp tweetResponse
		err := c.do(ctx, request{userID: userID, action: action, method: http.MethodPost, path: "/2/tweets", body: body}, &resp)
		if err != nil {
			return domain.ActionResult{}, partial(err, ids)
		}
		ids = append(ids, resp.Data.ID)
	}

	now := time.Now().UTC()
	res := domain.ActionResult{
		ID:        ids[0],
		URL:       statusURL(ids[0]),
		CreatedAt: &now,
		Success:   true,
	}
	if len(ids) > 1 {
		res.ThreadIDs = ids
	}
	return res, nil
}

// partial attache au détail de l'erreur les tweets déjà publiés du fil.
func partial(err error, posted []string) error {
	if len(posted) == 0 {
		return err
	}
	var pe *domain.PlatformError
	if errors.As(err, &pe) {
		return pe.WithDetail(domain.DetailPostedIDs, append([]string(nil), posted...))
	}
	return err
}

func (c *Client) Repost(ctx context.Context, userID, postID string) (domain.ActionResult, error) {
	var resp flagResponse
	path := "/2/users/" + url.PathEscape(userID) + "/retweets"
	if err := c.do(ctx, request{userID: userID, action: domain.ActionRepost, method: http.MethodPost, path: path, body: tweetIDBody{TweetID: postID}}, &resp); err != nil {
		return domain.ActionResult{}, err
	}
	return domain.ActionResult{ID: postID, URL: statusURL(postID), Success: resp.Data["retweeted"]}, nil
}

func (c *Client) DeletePost(ctx context.Context, userID, postID string) (domain.ActionResult, error) {
	var resp flagResponse
	path := "/2/tweets/" + url.PathEscape(postID)
	if err := c.do(ctx, request{userID: userID, action: domain.ActionDelete, method: http.MethodDelete, path: path}, &resp); err != nil {
		return domain.ActionResult{}, err
	}
	return domain.ActionResult{ID: postID, Success: resp.Data["deleted"]}, nil
}

func (c *Client) LikePost(ctx context.Context, userID, postID string) (domain.ActionResult, error) {
	var resp flagResponse
	path := "/2/users/" + url.PathEscape(userID) + "/likes"
	if err := c.do(ctx, request{userID: userID, action: domain.ActionLike, method: http.MethodPost, path: path, body: tweetIDBody{TweetID: postID}}, &resp); err != nil {
		return domain.ActionResult{}, err
	}
	return domain.ActionResult{ID: postID, URL: statusURL(postID), Success: resp.Data["liked"]}, nil
}

func (c *Client) UnlikePost(ctx context.Context, userID, postID string) (domain.ActionResult, error) {
	var resp flagResponse
	path := "/2/users/" + url.PathEscape(userID) + "/likes/" + url.PathEscape(postID)
	if err := c.do(ctx, request{userID: userID, action: domain.ActionUnlike, method: http.MethodDelete, path: path}, &resp); err != nil {
		return domain.ActionResult{}, err
	}
	// l'API renvoie liked=false une fois le like retiré
	return domain.ActionResult{ID: postID, URL: statusURL(postID), Success: !resp.Data["liked"]}, nil
}
