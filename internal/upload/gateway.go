// Package upload turns a locally captured image into a durable URL by
// posting it to a Cloudinary-compatible unsigned upload endpoint. The
// rest of the system only ever stores the returned URL — raw image
// bytes never reach Postgres.
package upload

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/lalith-99/echodm/internal/chaterr"
	"go.uber.org/zap"
)

type Gateway struct {
	client *resty.Client
	url    string
	preset string
	logger *zap.Logger
}

func NewGateway(uploadURL, preset string, logger *zap.Logger) *Gateway {
	client := resty.New().
		SetTimeout(30 * time.Second)

	return &Gateway{
		client: client,
		url:    uploadURL,
		preset: preset,
		logger: logger,
	}
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
}

// Upload converts inline image data (a data:image/... URL) into a
// hosted URL.
//
// Already-hosted input passes straight through — re-uploading an
// http(s) URL would duplicate the asset on every profile save. Inline
// data that is not an image is rejected before any network call.
//
// On failure the caller gets KindUpload and must not write a message
// record: no orphan message may point at an image that never landed.
func (g *Gateway) Upload(ctx context.Context, input string) (string, error) {
	if input == "" {
		return "", chaterr.Validation("No image data provided")
	}
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return input, nil
	}
	if !strings.HasPrefix(input, "data:image/") {
		return "", chaterr.Validation("Only image uploads are supported")
	}

	var result uploadResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetMultipartFormData(map[string]string{
			"file":          input,
			"upload_preset": g.preset,
		}).
		SetResult(&result).
		Post(g.url)
	if err != nil {
		return "", chaterr.Wrap(chaterr.KindUpload, "Image upload failed", err)
	}
	if resp.IsError() {
		g.logger.Warn("asset host rejected upload",
			zap.Int("status", resp.StatusCode()),
		)
		return "", chaterr.Wrap(chaterr.KindUpload, "Image upload failed",
			fmt.Errorf("asset host returned %s", resp.Status()))
	}
	if result.SecureURL == "" {
		return "", chaterr.New(chaterr.KindUpload, "Image upload failed")
	}

	return result.SecureURL, nil
}
