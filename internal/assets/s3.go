package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/clinic-rx/internal/tenancy"
	"github.com/wolfman30/clinic-rx/pkg/logging"
)

const s3Scheme = "s3://"

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner issues time-limited GET URLs; *s3.PresignClient satisfies it.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// DefaultPresignTTL bounds how long a browser URL for a stored image lives.
const DefaultPresignTTL = 15 * time.Minute

// Store keeps uploaded logos, captured prescription images and rendered
// artifacts in one bucket. References have the form s3://bucket/key.
type Store struct {
	bucket    string
	client    S3API
	presigner Presigner
	logger    *logging.Logger
}

// NewStore creates an S3-backed store.
func NewStore(client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, client: client, logger: logger}
}

// WithPresigner enables BrowserURL.
func (s *Store) WithPresigner(p Presigner) *Store {
	s.presigner = p
	return s
}

// BrowserURL turns an s3:// reference into a presigned HTTPS URL so a
// browser can render it. Stored references that do not belong to the clinic
// in ctx yield "". Other references are returned unchanged.
func (s *Store) BrowserURL(ctx context.Context, ref string) string {
	if !strings.HasPrefix(ref, s3Scheme) {
		return ref
	}
	clinicID, _ := tenancy.ClinicIDFromContext(ctx)
	if !s.Owns(clinicID, ref) {
		return ""
	}
	if s.presigner == nil {
		return ref
	}
	_, key, _ := ParseS3Ref(ref)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(DefaultPresignTTL))
	if err != nil {
		s.logger.Warn("presign failed", "key", key, "error", err)
		return ref
	}
	return req.URL
}

// ClinicPrefix is the key prefix every object of a clinic is stored under.
func ClinicPrefix(clinicID string) string {
	return "clinics/" + clinicID + "/"
}

// Owns reports whether ref points into this store's bucket under the
// clinic's prefix.
func (s *Store) Owns(clinicID, ref string) bool {
	if !s.Enabled() || clinicID == "" || strings.Contains(clinicID, "/") || strings.Contains(clinicID, "..") {
		return false
	}
	bucket, key, err := ParseS3Ref(ref)
	if err != nil || bucket != s.bucket || strings.Contains(key, "..") {
		return false
	}
	return strings.HasPrefix(key, ClinicPrefix(clinicID))
}

// Enabled returns true if a bucket and client are configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.client != nil
}

// Ref builds the reference for a key in this store's bucket.
func (s *Store) Ref(key string) string {
	return s3Scheme + s.bucket + "/" + key
}

// Put uploads data under key and returns its reference.
func (s *Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if !s.Enabled() {
		return "", errors.New("assets: object storage not configured")
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("assets: s3 put %s: %w", key, err)
	}
	s.logger.Info("stored object", "key", key, "bytes", len(data), "content_type", contentType)
	return s.Ref(key), nil
}

// Get downloads the object behind ref. Only this store's bucket is read.
func (s *Store) Get(ctx context.Context, ref string) ([]byte, string, error) {
	bucket, key, err := s.parseOwnBucket(ref)
	if err != nil {
		return nil, "", err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, "", fmt.Errorf("assets: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("assets: s3 read %s: %w", key, err)
	}
	return data, aws.ToString(out.ContentType), nil
}

// Delete removes the object behind ref. Missing objects are not an error.
func (s *Store) Delete(ctx context.Context, ref string) error {
	bucket, key, err := s.parseOwnBucket(ref)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("assets: s3 delete %s: %w", key, err)
	}
	return nil
}

// Load implements Loader for s3:// references. The clinic in ctx must own
// ref.
func (s *Store) Load(ctx context.Context, ref string) (image.Image, error) {
	clinicID, ok := tenancy.ClinicIDFromContext(ctx)
	if !ok || !s.Owns(clinicID, ref) {
		return nil, fmt.Errorf("%w: %q", ErrForeignRef, ref)
	}
	data, contentType, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return Decode(data, contentType)
}

func (s *Store) parseOwnBucket(ref string) (string, string, error) {
	if !s.Enabled() {
		return "", "", errors.New("assets: object storage not configured")
	}
	bucket, key, err := ParseS3Ref(ref)
	if err != nil {
		return "", "", err
	}
	if bucket != s.bucket {
		return "", "", fmt.Errorf("%w: %q", ErrForeignRef, ref)
	}
	return bucket, key, nil
}

// ParseS3Ref splits s3://bucket/key.
func ParseS3Ref(ref string) (string, string, error) {
	rest, ok := strings.CutPrefix(ref, s3Scheme)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedRef, ref)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedRef, ref)
	}
	return bucket, key, nil
}
