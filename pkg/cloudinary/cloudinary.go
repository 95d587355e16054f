package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// ErrNotConfigured is returned when credentials are missing.
var ErrNotConfigured = errors.New("cloudinary credentials must be provided")

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Enabled reports whether all credentials are present.
func (c Config) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// Archive stores generated report documents as raw Cloudinary assets.
type Archive struct {
	client *cloudinary.Cloudinary
	folder string
	now    func() time.Time
	logger zerolog.Logger
}

// New constructs an archive backed by Cloudinary.
func New(cfg Config, logger zerolog.Logger) (*Archive, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Archive{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		now:    time.Now,
		logger: logger.With().Str("component", "report_archive").Logger(),
	}, nil
}

// Upload sends the document to Cloudinary and returns its secure URL.
// PDF and CSV documents are kept as raw assets so they download unchanged.
func (a *Archive) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	params := uploader.UploadParams{
		Folder:       a.folder,
		PublicID:     buildPublicID(name, a.now()),
		ResourceType: "raw",
	}

	result, err := a.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to archive report: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to archive report: %s", result.Error.Message)
	}

	a.logger.Info().Str("public_id", result.PublicID).Int("bytes", result.Bytes).Msg("report archived")

	return result.SecureURL, nil
}

// buildPublicID keeps the extension because raw assets are served by public id.
func buildPublicID(name string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(name))
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	if base == "" {
		base = "report"
	}

	return fmt.Sprintf("%s-%d%s", base, now.Unix(), ext)
}
