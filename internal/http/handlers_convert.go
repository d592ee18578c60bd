package http

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"morpho/internal/config"
	"morpho/internal/metrics"
	"morpho/internal/services"
	"morpho/internal/storage"
)

const defaultMaxBatchFiles = 10

// convertHandler accepts a single multipart upload and returns the
// created job immediately in pending status; callers poll for
// completion.
func convertHandler(c *fiber.Ctx) error {
	svc := c.Locals("convertService").(*services.ConvertService)
	files := c.Locals("files").(*storage.Dir)

	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "MISSING_FILE",
			Error:   "Missing required file field 'file'",
		})
	}

	sub, errResp := buildSubmission(c, files, fh)
	if errResp != nil {
		return c.Status(errResp.status).JSON(errResp.body)
	}

	job, err := svc.SubmitSingle(c.Context(), *sub)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "CONVERT_JOB_CREATE_FAILED",
			Error:   err.Error(),
		})
	}

	item := jobItem(job)
	return c.Status(fiber.StatusOK).JSON(JobResponse{
		Success: true,
		Job:     &item,
	})
}

// batchConvertHandler accepts 1..maxBatchFiles uploads under one batch
// id. Members are persisted individually; creation is not
// transactional.
func batchConvertHandler(c *fiber.Ctx) error {
	cfg := c.Locals("config").(*config.Config)
	svc := c.Locals("convertService").(*services.ConvertService)
	files := c.Locals("files").(*storage.Dir)

	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(BatchSubmitResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Malformed multipart form",
		})
	}

	uploads := form.File["files"]
	if len(uploads) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(BatchSubmitResponse{
			Success: false,
			Code:    "MISSING_FILE",
			Error:   "Missing required file field 'files'",
		})
	}

	maxFiles := cfg.Conversion.MaxBatchFiles
	if maxFiles <= 0 {
		maxFiles = defaultMaxBatchFiles
	}
	if len(uploads) > maxFiles {
		return c.Status(fiber.StatusBadRequest).JSON(BatchSubmitResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   fmt.Sprintf("Too many files; maximum is %d", maxFiles),
		})
	}

	subs := make([]services.JobSubmission, 0, len(uploads))
	for _, fh := range uploads {
		sub, errResp := buildSubmission(c, files, fh)
		if errResp != nil {
			// No job rows exist yet, so retention would never reap
			// artifacts saved for the earlier members. Remove them here.
			for _, saved := range subs {
				_ = files.Remove(saved.ArtifactPath)
			}
			return c.Status(errResp.status).JSON(errResp.body)
		}
		subs = append(subs, *sub)
	}

	batch, err := svc.SubmitBatch(c.Context(), subs)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(BatchSubmitResponse{
			Success: false,
			Code:    "CONVERT_JOB_CREATE_FAILED",
			Error:   err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(BatchSubmitResponse{
		Success:    true,
		BatchID:    batch.BatchID.String(),
		TotalFiles: batch.TotalFiles,
		Jobs:       jobItems(batch.Jobs),
	})
}

type handlerError struct {
	status int
	body   ErrorResponse
}

// buildSubmission validates format fields and the upload itself, saves
// the artifact to storage, and assembles the service-layer submission.
func buildSubmission(c *fiber.Ctx, files *storage.Dir, fh *multipart.FileHeader) (*services.JobSubmission, *handlerError) {
	from := c.FormValue("from")
	to := c.FormValue("to")
	if from == "" || to == "" {
		return nil, &handlerError{
			status: fiber.StatusBadRequest,
			body: ErrorResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   "Missing required fields 'from' and 'to'",
			},
		}
	}

	if !files.AllowedSource(fh.Filename) {
		return nil, &handlerError{
			status: fiber.StatusBadRequest,
			body: ErrorResponse{
				Success: false,
				Code:    "UNSUPPORTED_SOURCE_FORMAT",
				Error:   "Source file extension is not accepted by this intake",
			},
		}
	}

	path, size, err := files.SaveUpload(fh)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, &handlerError{
				status: fiber.StatusRequestEntityTooLarge,
				body: ErrorResponse{
					Success: false,
					Code:    "FILE_TOO_LARGE",
					Error:   "Uploaded file exceeds the maximum allowed size",
				},
			}
		}
		return nil, &handlerError{
			status: fiber.StatusInternalServerError,
			body: ErrorResponse{
				Success: false,
				Code:    "UPLOAD_FAILED",
				Error:   err.Error(),
			},
		}
	}
	metrics.RecordUploadBytes(size)

	var logger *slog.Logger
	if l, ok := c.Locals("logger").(*slog.Logger); ok {
		logger = l
	}

	var apiKeyID *uuid.UUID
	if key, ok := apiKeyFromContext(c); ok {
		id := key.ID
		apiKeyID = &id
	}

	return &services.JobSubmission{
		SourceFormat:     from,
		TargetFormat:     to,
		OriginalFilename: fh.Filename,
		ArtifactPath:     path,
		SizeBytes:        size,
		Quality:          c.FormValue("quality"),
		Settings:         services.ParseSettings(c.FormValue("settings"), logger),
		ApiKeyID:         apiKeyID,
	}, nil
}
