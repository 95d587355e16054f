package service

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/rendus-api/internal/observability"
)

var (
	// ErrUploadMissing indicates the multipart form carried no file.
	ErrUploadMissing = errors.New("file is required")
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadTypeNotAllowed indicates the detected type is not accepted for this upload.
	ErrUploadTypeNotAllowed = errors.New("file type not allowed")
	// ErrUploadScanFailed indicates the archive could not be read safely.
	ErrUploadScanFailed = errors.New("file scanning failed")
)

// FileStorage abstracts archive destinations.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// UploadKind selects the acceptance rules of an upload.
type UploadKind string

const (
	// UploadArchive is a zip of student submissions.
	UploadArchive UploadKind = "archive"
	// UploadRoster is a newline-delimited list of student names.
	UploadRoster UploadKind = "roster"
)

// InspectedUpload is a validated upload held in memory.
type InspectedUpload struct {
	FileName string
	MimeType string
	Size     int64
	Checksum string
	Content  []byte
}

// UploadInspector validates uploads before they are forwarded to the course backend.
type UploadInspector interface {
	Inspect(ctx context.Context, kind UploadKind, file *multipart.FileHeader) (InspectedUpload, error)
}

type uploadInspector struct {
	logger  zerolog.Logger
	maxSize int64
	tracer  trace.Tracer
}

// NewUploadInspector constructs an upload inspector.
func NewUploadInspector(maxSizeMB int, logger zerolog.Logger) UploadInspector {
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	return &uploadInspector{
		logger:  logger.With().Str("component", "upload_inspector").Logger(),
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		tracer:  otel.Tracer("github.com/noah-isme/rendus-api/internal/service/upload"),
	}
}

func (s *uploadInspector) Inspect(ctx context.Context, kind UploadKind, file *multipart.FileHeader) (InspectedUpload, error) {
	_, span := s.tracer.Start(ctx, "upload.inspect", trace.WithAttributes(
		attribute.String("upload.kind", string(kind)),
		attribute.Int64("upload.max_bytes", s.maxSize),
	))
	defer span.End()

	reject := func(reason string, err error) (InspectedUpload, error) {
		observability.UploadsRejected().WithLabelValues(string(kind), reason).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		return InspectedUpload{}, err
	}

	if file == nil {
		return reject("missing", ErrUploadMissing)
	}
	span.SetAttributes(
		attribute.String("upload.original_name", strings.TrimSpace(file.Filename)),
		attribute.Int64("upload.request_size", file.Size),
	)
	if file.Size > s.maxSize {
		return reject("size", ErrUploadTooLarge)
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		return InspectedUpload{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		return InspectedUpload{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		return reject("size", ErrUploadTooLarge)
	}

	detected := mimetype.Detect(buf.Bytes())
	fileType := normalizeMime(detected)
	span.SetAttributes(attribute.String("upload.detected_mime", fileType))
	if !allowedFor(kind, fileType) {
		return reject("type", ErrUploadTypeNotAllowed)
	}

	if kind == UploadArchive {
		if err := s.scan(buf.Bytes()); err != nil {
			return reject("scan", err)
		}
	}

	checksum := sha256.Sum256(buf.Bytes())
	name := sanitizeFileName(file.Filename, kind)
	span.SetStatus(codes.Ok, "accepted")

	return InspectedUpload{
		FileName: name,
		MimeType: fileType,
		Size:     int64(buf.Len()),
		Checksum: hex.EncodeToString(checksum[:]),
		Content:  buf.Bytes(),
	}, nil
}

// scan rejects unreadable archives and zip bombs.
func (s *uploadInspector) scan(payload []byte) error {
	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return ErrUploadScanFailed
	}
	if len(reader.File) == 0 {
		return fmt.Errorf("zip archive is empty: %w", ErrUploadScanFailed)
	}
	var totalUncompressed uint64
	for _, f := range reader.File {
		if strings.Contains(f.Name, "..") {
			return fmt.Errorf("zip entry %q escapes the archive: %w", f.Name, ErrUploadScanFailed)
		}
		totalUncompressed += f.UncompressedSize64
		if totalUncompressed > uint64(s.maxSize*20) {
			return fmt.Errorf("zip archive uncompressed size too large: %w", ErrUploadScanFailed)
		}
	}
	return nil
}

func sanitizeFileName(name string, kind UploadKind) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("upload-%d", time.Now().Unix())
	}

	ext := strings.ToLower(filepath.Ext(name))
	switch kind {
	case UploadArchive:
		ext = ".zip"
	case UploadRoster:
		if ext == "" {
			ext = ".txt"
		}
	}
	return base + ext
}

func normalizeMime(detected *mimetype.MIME) string {
	for m := detected; m != nil; m = m.Parent() {
		switch {
		case m.Is("application/zip"), m.Is("application/x-zip-compressed"):
			return "application/zip"
		case m.Is("text/plain"):
			return "text/plain"
		}
	}
	return strings.ToLower(detected.String())
}

func allowedFor(kind UploadKind, fileType string) bool {
	switch kind {
	case UploadArchive:
		return fileType == "application/zip"
	case UploadRoster:
		return fileType == "text/plain"
	default:
		return false
	}
}
