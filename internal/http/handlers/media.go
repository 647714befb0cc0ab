package handlers

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"os"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/softglow/ambientd/internal/ingest"
	"github.com/softglow/ambientd/internal/jobs"
)

// MediaHandler handles ingestion and job polling endpoints.
type MediaHandler struct {
	service  *ingest.Service
	registry *jobs.Registry
	logger   *slog.Logger
}

// NewMediaHandler creates a media handler.
func NewMediaHandler(service *ingest.Service, registry *jobs.Registry, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{service: service, registry: registry, logger: logger}
}

// Register registers the media routes with the API.
func (h *MediaHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:      "uploadMedia",
		Method:           "POST",
		Path:             "/api/v1/media/upload",
		Summary:          "Upload media",
		Description:      "Uploads a video file, optionally producing its ambient derivative",
		Tags:             []string{"Media"},
		RequestBody:      &huma.RequestBody{Content: map[string]*huma.MediaType{"multipart/form-data": {}}},
		SkipValidateBody: true,
	}, h.UploadMedia)

	huma.Register(api, huma.Operation{
		OperationID: "openMedia",
		Method:      "POST",
		Path:        "/api/v1/media/open",
		Summary:     "Open local media",
		Description: "Ingests a local file by path, optionally producing its ambient derivative",
		Tags:        []string{"Media"},
	}, h.OpenMedia)

	huma.Register(api, huma.Operation{
		OperationID: "getJob",
		Method:      "GET",
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Poll job state",
		Description: "Returns progress and readiness for a transcode job",
		Tags:        []string{"Jobs"},
	}, h.GetJob)
}

// UploadMediaInput is the multipart input for an upload.
type UploadMediaInput struct {
	RawBody multipart.Form
}

// UploadMediaOutput is the response for an accepted upload.
type UploadMediaOutput struct {
	Body JobResponse
}

// UploadMedia accepts a multipart upload. Form fields: "file" is the video
// payload, "ambient" (optional, boolean) requests the derivative.
func (h *MediaHandler) UploadMedia(ctx context.Context, input *UploadMediaInput) (*UploadMediaOutput, error) {
	files := input.RawBody.File["file"]
	if len(files) == 0 {
		return nil, huma.Error400BadRequest("No file provided")
	}
	fileHeader := files[0]
	if fileHeader.Filename == "" {
		return nil, huma.Error400BadRequest("Uploaded file has no name")
	}

	ambient := false
	if values := input.RawBody.Value["ambient"]; len(values) > 0 {
		parsed, err := strconv.ParseBool(values[0])
		if err != nil {
			return nil, huma.Error400BadRequest("Invalid ambient flag: " + values[0])
		}
		ambient = parsed
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, huma.Error400BadRequest("Failed to open uploaded file")
	}
	defer file.Close()

	state, err := h.service.IngestUpload(ctx, fileHeader.Filename, file, ambient)
	if err != nil {
		h.logger.Error("upload ingest failed",
			slog.String("filename", fileHeader.Filename),
			slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError("Failed to ingest upload")
	}

	return &UploadMediaOutput{Body: JobResponseFromState(state)}, nil
}

// OpenMediaInput is the JSON input for ingesting a local path.
type OpenMediaInput struct {
	Body struct {
		Path    string `json:"path" minLength:"1" doc:"Local file-system path of the video"`
		Ambient bool   `json:"ambient,omitempty" doc:"Whether to produce the ambient derivative"`
	}
}

// OpenMediaOutput is the response for an accepted open request.
type OpenMediaOutput struct {
	Body JobResponse
}

// OpenMedia ingests a trusted local file by path.
func (h *MediaHandler) OpenMedia(ctx context.Context, input *OpenMediaInput) (*OpenMediaOutput, error) {
	state, err := h.service.IngestPath(ctx, input.Body.Path, input.Body.Ambient)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, huma.Error400BadRequest("Source path does not exist: " + input.Body.Path)
		}
		h.logger.Error("open ingest failed",
			slog.String("path", input.Body.Path),
			slog.String("error", err.Error()))
		return nil, huma.Error400BadRequest("Failed to ingest source: " + err.Error())
	}

	return &OpenMediaOutput{Body: JobResponseFromState(state)}, nil
}

// GetJobInput identifies the job to poll.
type GetJobInput struct {
	ID string `path:"id" doc:"Job identifier returned at ingestion"`
}

// GetJobOutput is the polling response.
type GetJobOutput struct {
	Body JobResponse
}

// GetJob returns the current state of a job. An unknown id, including one
// whose cascade exhausted every encoder, yields 404.
func (h *MediaHandler) GetJob(ctx context.Context, input *GetJobInput) (*GetJobOutput, error) {
	job, err := h.registry.Get(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound("Unknown job: " + input.ID)
	}

	return &GetJobOutput{Body: JobResponseFromState(job.Snapshot())}, nil
}
