package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vidtube/backend/internal/apierror"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/media"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/repositories"
)

// VideoHandler provides video publishing and view-recording endpoints.
type VideoHandler struct {
	Videos  VideoStore
	Media   media.Uploader
	TempDir string
	NowFunc func() time.Time
}

// Publish handles POST /api/v1/videos (multipart). Requires the auth guard.
func (h VideoHandler) Publish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, span := logging.StartSpan(r.Context(), "videos.publish")
	defer span.End()

	owner, ok := UserFromContext(ctx)
	if !ok {
		respondError(ctx, w, apierror.Unauthorized("authentication required"))
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		respondError(ctx, w, apierror.BadRequest("invalid multipart request"))
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		respondError(ctx, w, apierror.BadRequest("title is required"))
		return
	}
	description := strings.TrimSpace(r.FormValue("description"))

	duration, _ := strconv.ParseInt(strings.TrimSpace(r.FormValue("durationSeconds")), 10, 64)
	if duration < 0 {
		duration = 0
	}

	videoURL, err := h.uploadPart(r, "videoFile", "videos")
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	thumbnailURL, err := h.uploadPart(r, "thumbnail", "thumbnails")
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	video := models.Video{
		ID:           uuid.NewString(),
		OwnerID:      owner.ID,
		Title:        title,
		Description:  description,
		VideoURL:     videoURL,
		ThumbnailURL: thumbnailURL,
		Duration:     duration,
		Published:    true,
		CreatedAt:    h.now(),
	}

	if err := h.Videos.Create(ctx, video); err != nil {
		respondError(ctx, w, apierror.Internal("video creation failed", err))
		return
	}

	respondData(ctx, w, http.StatusCreated, video, "video published successfully")
}

// View handles POST /api/v1/videos/{id}/view. Requires the auth guard.
func (h VideoHandler) View(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	user, ok := UserFromContext(ctx)
	if !ok {
		respondError(ctx, w, apierror.Unauthorized("authentication required"))
		return
	}

	videoID := strings.TrimSpace(r.PathValue("id"))
	if videoID == "" {
		respondError(ctx, w, apierror.BadRequest("video id is required"))
		return
	}

	if err := h.Videos.RecordView(ctx, user.ID, videoID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, apierror.NotFound("video not found"))
			return
		}
		respondError(ctx, w, apierror.Internal("unable to record view", err))
		return
	}

	video, err := h.Videos.FindByID(ctx, videoID)
	if err != nil {
		respondError(ctx, w, apierror.Internal("unable to load video", err))
		return
	}

	respondData(ctx, w, http.StatusOK, video, "view recorded")
}

func (h VideoHandler) uploadPart(r *http.Request, field, keyPrefix string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", apierror.BadRequest(field + " file is required")
		}
		return "", apierror.BadRequest("invalid " + field + " upload")
	}
	defer file.Close()

	path, err := media.SpoolTempFile(h.TempDir, file, header.Filename)
	if err != nil {
		return "", apierror.Internal(field+" upload failed", err)
	}

	url, err := h.Media.UploadFile(r.Context(), path, keyPrefix)
	if err != nil {
		return "", apierror.Internal(field+" upload failed", err)
	}

	return url, nil
}

func (h VideoHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
