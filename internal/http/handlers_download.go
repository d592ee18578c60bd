package http

import (
	"archive/zip"
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"morpho/internal/services"
)

func downloadHandler(c *fiber.Ctx) error {
	svc := c.Locals("downloadService").(*services.DownloadService)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Invalid job id",
		})
	}

	_, artifact, err := svc.ResolveJob(c.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrJobNotFound):
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Success: false,
				Code:    "NOT_FOUND",
				Error:   "Job not found",
			})
		case errors.Is(err, services.ErrJobNotReady):
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
				Success: false,
				Code:    "JOB_NOT_READY",
				Error:   "Conversion has not completed yet",
			})
		case errors.Is(err, services.ErrArtifactMissing):
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Success: false,
				Code:    "ARTIFACT_MISSING",
				Error:   "Converted file is no longer available",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   err.Error(),
		})
	}

	return c.Download(artifact.Path, artifact.Filename)
}

// batchDownloadHandler streams a zip archive of every completed member
// of the batch. Members still in flight or with missing files are
// skipped rather than failing the whole archive.
func batchDownloadHandler(c *fiber.Ctx) error {
	svc := c.Locals("downloadService").(*services.DownloadService)

	batchID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Invalid batch id",
		})
	}

	artifacts, err := svc.ResolveBatch(c.Context(), batchID)
	if err != nil {
		if errors.Is(err, services.ErrNoCompletedJobs) {
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
				Success: false,
				Code:    "NO_COMPLETED_JOBS",
				Error:   "Batch has no completed conversions to download",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   err.Error(),
		})
	}

	var logger *slog.Logger
	if l, ok := c.Locals("logger").(*slog.Logger); ok {
		logger = l
	}

	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="batch-`+batchID.String()+`.zip"`)
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		writeBatchZip(w, artifacts, logger)
	})
	return nil
}

func writeBatchZip(w io.Writer, artifacts []services.Artifact, logger *slog.Logger) {
	zw := zip.NewWriter(w)
	defer zw.Close()

	seen := make(map[string]int)
	for _, a := range artifacts {
		name := a.Filename
		if n := seen[name]; n > 0 {
			name = dedupeZipName(name, n)
		}
		seen[a.Filename]++

		entry, err := zw.Create(name)
		if err != nil {
			return
		}
		f, err := os.Open(a.Path)
		if err != nil {
			if logger != nil {
				logger.Warn("batch archive member skipped", "path", a.Path, "error", err)
			}
			continue
		}
		_, err = io.Copy(entry, f)
		f.Close()
		if err != nil {
			return
		}
	}
}

// dedupeZipName appends a counter before the extension so duplicate
// originals do not collide inside the archive.
func dedupeZipName(name string, n int) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s (%d)%s", base, n, ext)
}
