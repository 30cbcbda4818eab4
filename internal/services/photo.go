package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"contest-vote-backend/internal/models"
	"contest-vote-backend/internal/repository"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	uploadURLExpiry = 5 * time.Minute
	viewURLExpiry   = 15 * time.Minute
)

var allowedContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/heic": ".heic",
}

// StorageConfig locates the bucket photos are uploaded to
type StorageConfig struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	// Endpoint points at an S3-compatible server; DisableSSL selects plain
	// http when it carries no scheme or an https one
	Endpoint   string
	DisableSSL bool
}

// PhotoService handles photo registration, moderation and view URLs
type PhotoService struct {
	store      repository.Store
	s3Client   *s3.Client
	presign    *s3.PresignClient
	s3Bucket   string
	baseRating float64
	now        func() time.Time
}

// NewPhotoService creates a new photo service. Without a bucket the service
// still registers photos but hands out no upload or view URLs.
func NewPhotoService(ctx context.Context, store repository.Store, storage StorageConfig, baseRating float64) (*PhotoService, error) {
	s := &PhotoService{
		store:      store,
		s3Bucket:   storage.Bucket,
		baseRating: baseRating,
		now:        time.Now,
	}
	if storage.Bucket == "" {
		log.Info().Msg("S3 bucket not configured, presigned URLs disabled")
		return s, nil
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(storage.Region)}
	if storage.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(storage.AccessKey, storage.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s.s3Client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		if storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3Endpoint(storage.Endpoint, storage.DisableSSL))
			o.UsePathStyle = true
		}
	})
	s.presign = s3.NewPresignClient(s.s3Client)

	return s, nil
}

func s3Endpoint(endpoint string, disableSSL bool) string {
	scheme := "https://"
	if disableSSL {
		scheme = "http://"
	}
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return scheme + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return endpoint
	default:
		return scheme + endpoint
	}
}

// UploadResponse represents the response with pre-signed URL
type UploadResponse struct {
	UploadURL string `json:"upload_url,omitempty"`
	PhotoID   string `json:"photo_id"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}

// RegisterUpload creates a pending photo owned by the caller and returns a
// pre-signed URL the client uploads the image to.
func (s *PhotoService) RegisterUpload(ctx context.Context, caller Claims, contestID, contentType string) (*UploadResponse, error) {
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported content type %q", ErrInvalidInput, contentType)
	}

	contest, err := s.store.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if contest.Status == models.ContestFinished || !s.now().Before(contest.VotingClosesAt) {
		return nil, ErrContestFinished
	}

	photoID := uuid.New().String()
	photo := &models.Photo{
		ID:        photoID,
		ContestID: contestID,
		OwnerID:   caller.UserID,
		S3Key:     fmt.Sprintf("contests/%s/%s%s", contestID, photoID, ext),
		Status:    models.PhotoPending,
		CreatedAt: s.now(),
	}

	resp := &UploadResponse{PhotoID: photoID}
	if s.presign != nil {
		request, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.s3Bucket),
			Key:         aws.String(photo.S3Key),
			ContentType: aws.String(contentType),
		}, func(opts *s3.PresignOptions) {
			opts.Expires = uploadURLExpiry
		})
		if err != nil {
			return nil, fmt.Errorf("failed to generate pre-signed URL: %w", err)
		}
		resp.UploadURL = request.URL
		resp.ExpiresIn = int(uploadURLExpiry.Seconds())
	}

	if err := s.store.CreatePhoto(ctx, photo); err != nil {
		return nil, fmt.Errorf("failed to create photo record: %w", err)
	}

	return resp, nil
}

// AttachViewURLs fills in a short-lived download URL for each photo
func (s *PhotoService) AttachViewURLs(ctx context.Context, photos ...*models.Photo) {
	if s.presign == nil {
		return
	}
	for _, photo := range photos {
		if photo == nil || photo.S3Key == "" {
			continue
		}
		request, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.s3Bucket),
			Key:    aws.String(photo.S3Key),
		}, func(opts *s3.PresignOptions) {
			opts.Expires = viewURLExpiry
		})
		if err != nil {
			log.Warn().Err(err).Str("photo_id", photo.ID).Msg("Failed to presign view URL")
			continue
		}
		photo.URL = request.URL
	}
}

// ApprovePhoto admits a photo into the voting pool at the base rating
func (s *PhotoService) ApprovePhoto(ctx context.Context, caller Claims, photoID string) (*models.Photo, error) {
	photo, err := s.moderatable(ctx, caller, photoID)
	if err != nil {
		return nil, err
	}

	if err := s.store.ApprovePhoto(ctx, photo.ID, s.baseRating); err != nil {
		return nil, fmt.Errorf("failed to approve photo: %w", err)
	}

	log.Info().Str("photo_id", photoID).Str("contest_id", photo.ContestID).Msg("Photo approved")
	return s.store.GetPhoto(ctx, photoID)
}

// RejectPhoto keeps a pending photo out of the voting pool
func (s *PhotoService) RejectPhoto(ctx context.Context, caller Claims, photoID string) (*models.Photo, error) {
	photo, err := s.moderatable(ctx, caller, photoID)
	if err != nil {
		return nil, err
	}
	if photo.Status == models.PhotoApproved {
		return nil, fmt.Errorf("%w: photo is already in the voting pool", ErrInvalidInput)
	}

	if err := s.store.RejectPhoto(ctx, photo.ID); err != nil {
		return nil, fmt.Errorf("failed to reject photo: %w", err)
	}

	log.Info().Str("photo_id", photoID).Str("contest_id", photo.ContestID).Msg("Photo rejected")
	return s.store.GetPhoto(ctx, photoID)
}

// ListPhotos returns a contest's photos in a moderation state, for staff
func (s *PhotoService) ListPhotos(ctx context.Context, caller Claims, contestID string, status models.PhotoStatus) ([]*models.Photo, error) {
	switch status {
	case models.PhotoPending, models.PhotoApproved, models.PhotoRejected:
	default:
		return nil, fmt.Errorf("%w: unknown photo status %q", ErrInvalidInput, status)
	}

	contest, err := s.store.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if !canManage(caller, contest) {
		return nil, ErrForbidden
	}

	photos, err := s.store.ListPhotos(ctx, contestID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	s.AttachViewURLs(ctx, photos...)
	return photos, nil
}

func (s *PhotoService) moderatable(ctx context.Context, caller Claims, photoID string) (*models.Photo, error) {
	photo, err := s.store.GetPhoto(ctx, photoID)
	if err != nil {
		return nil, err
	}

	contest, err := s.store.GetContest(ctx, photo.ContestID)
	if err != nil {
		return nil, err
	}
	if !canManage(caller, contest) {
		return nil, ErrForbidden
	}
	if contest.Status == models.ContestFinished {
		return nil, ErrContestFinished
	}

	return photo, nil
}
