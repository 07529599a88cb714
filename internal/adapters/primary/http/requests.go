package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/ports"
)

type targetDTO struct {
	Platform string `json:"platform" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
}

type createPostRequest struct {
	Targets []targetDTO          `json:"targets" validate:"required,min=1,dive"`
	Content []domain.PostContent `json:"content" validate:"required,min=1,dive"`
}

// postRefRequest : repost, like, unlike.
type postRefRequest struct {
	Targets  []targetDTO `json:"targets" validate:"required,min=1,dive"`
	Platform string      `json:"platform" validate:"required"`
	PostID   string      `json:"postId" validate:"required"`
}

// replyRequest : reply et quote portent en plus un contenu.
type replyRequest struct {
	postRefRequest
	Content []domain.PostContent `json:"content" validate:"required,min=1,dive"`
}

type postDTO struct {
	Platform string `json:"platform" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
	PostID   string `json:"postId" validate:"required"`
}

type deletePostsRequest struct {
	Targets []targetDTO `json:"targets" validate:"required,min=1,dive"`
	Posts   []postDTO   `json:"posts" validate:"required,min=1,dive"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// noms JSON dans les messages d'erreur
	v.RegisterTagNameFunc(jsonFieldName)
	return v
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		parts = append(parts, fmt.Sprintf("%s failed on '%s'", field, fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func toTargets(in []targetDTO) ([]domain.Target, error) {
	out := make([]domain.Target, 0, len(in))
	for _, t := range in {
		p, err := domain.ParsePlatform(t.Platform)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Target{Platform: p, UserID: strings.TrimSpace(t.UserID)})
	}
	return out, nil
}

func (r postRefRequest) toCmd(signer string, content []domain.PostContent) (ports.PostRefCmd, error) {
	targets, err := toTargets(r.Targets)
	if err != nil {
		return ports.PostRefCmd{}, err
	}
	platform, err := domain.ParsePlatform(r.Platform)
	if err != nil {
		return ports.PostRefCmd{}, err
	}
	return ports.PostRefCmd{
		SignerID: signer,
		Targets:  targets,
		Platform: platform,
		PostID:   strings.TrimSpace(r.PostID),
		Content:  content,
	}, nil
}

func (r deletePostsRequest) toCmd(signer string) (ports.DeletePostsCmd, error) {
	targets, err := toTargets(r.Targets)
	if err != nil {
		return ports.DeletePostsCmd{}, err
	}
	posts := make([]ports.PostRef, 0, len(r.Posts))
	for _, p := range r.Posts {
		platform, err := domain.ParsePlatform(p.Platform)
		if err != nil {
			return ports.DeletePostsCmd{}, err
		}
		posts = append(posts, ports.PostRef{Platform: platform, UserID: strings.TrimSpace(p.UserID), PostID: strings.TrimSpace(p.PostID)})
	}
	return ports.DeletePostsCmd{SignerID: signer, Targets: targets, Posts: posts}, nil
}
