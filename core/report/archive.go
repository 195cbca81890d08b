package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"site-sync/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// ErrNoReport is returned by Latest when the archive is empty.
var ErrNoReport = errors.New("no archived report")

// Archive stores run reports in an object storage bucket.
type Archive struct {
	client storage.Client
	bucket string
	prefix string
	keep   int
	logger *zap.Logger
}

// NewArchive creates an archive. keep <= 0 disables pruning.
func NewArchive(client storage.Client, bucket, prefix string, keep int, logger *zap.Logger) *Archive {
	return &Archive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		keep:   keep,
		logger: logger,
	}
}

// ObjectName returns the object name of r. Names sort by start time.
func (a *Archive) ObjectName(r *Report, format Format) string {
	name := fmt.Sprintf("%s-%s.%s", r.StartedAt.UTC().Format("20060102T150405Z"), r.RunID, format)
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

// Put uploads r and prunes old reports.
func (a *Archive) Put(ctx context.Context, r *Report, format Format) (string, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, r, format); err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	name := a.ObjectName(r, format)
	contentType := "application/json"
	if format == FormatYAML {
		contentType = "application/yaml"
	}
	_, err := a.client.PutObject(ctx, a.bucket, name, bytes.NewReader(buf.Bytes()), int64(buf.Len()), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload report %s: %w", name, err)
	}
	a.logger.Info("Report archived", zap.String("bucket", a.bucket), zap.String("object", name))

	if err := a.Prune(ctx); err != nil {
		a.logger.Warn("Failed to prune reports", zap.Error(err))
	}
	return name, nil
}

// Latest downloads the most recent report.
func (a *Archive) Latest(ctx context.Context) (*Report, error) {
	names, err := a.list(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrNoReport
	}

	name := names[len(names)-1]
	obj, err := a.client.GetObject(ctx, a.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download report %s: %w", name, err)
	}
	defer obj.Close()

	format := FormatJSON
	if strings.HasSuffix(name, "."+string(FormatYAML)) {
		format = FormatYAML
	}
	return Decode(obj, format)
}

// Prune removes all but the newest keep reports.
func (a *Archive) Prune(ctx context.Context) error {
	if a.keep <= 0 {
		return nil
	}
	names, err := a.list(ctx)
	if err != nil {
		return err
	}
	if len(names) <= a.keep {
		return nil
	}

	var errs []error
	for _, name := range names[:len(names)-a.keep] {
		if err := a.client.RemoveObject(ctx, a.bucket, name, minio.RemoveObjectOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// list returns the archived object names, oldest first.
func (a *Archive) list(ctx context.Context) ([]string, error) {
	opts := minio.ListObjectsOptions{Recursive: true}
	if a.prefix != "" {
		opts.Prefix = a.prefix + "/"
	}

	var names []string
	for obj := range a.client.ListObjects(ctx, a.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list reports: %w", obj.Err)
		}
		if strings.HasSuffix(obj.Key, "."+string(FormatJSON)) || strings.HasSuffix(obj.Key, "."+string(FormatYAML)) {
			names = append(names, obj.Key)
		}
	}
	sort.Strings(names)
	return names, nil
}
