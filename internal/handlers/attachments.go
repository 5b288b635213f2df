package handlers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"pulse-backend/internal/utils"
)

const maxAttachmentSize = 15 << 20 // 15 MiB

var allowedAttachmentExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".mp3": true, ".m4a": true, ".ogg": true, ".webm": true, ".wav": true,
	".pdf": true, ".txt": true,
}

// BuildAttachmentURL constructs an absolute URL for an uploaded file based on
// request host, preferring BASE_URL when configured.
func BuildAttachmentURL(c *fiber.Ctx, filename string) string {
	if filename == "" {
		return ""
	}
	baseURL := utils.GetEnv("BASE_URL", "")
	if baseURL != "" {
		return fmt.Sprintf("%s/uploads/%s", baseURL, filename)
	}
	return fmt.Sprintf("%s://%s/uploads/%s", c.Protocol(), c.Hostname(), filename)
}

// UploadAttachmentHandler stores a multipart file (field name: "file") and
// returns the URL a subsequent message:send or dm:send references.
func UploadAttachmentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "file field required"})
		}
		if fh.Size > maxAttachmentSize {
			return c.Status(400).JSON(fiber.Map{"error": "file too large"})
		}

		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if !allowedAttachmentExts[ext] {
			return c.Status(400).JSON(fiber.Map{"error": "unsupported file type"})
		}

		uploadDir := utils.GetEnv("UPLOAD_DIR", "uploads")
		filename := uuid.New().String() + ext
		dest := filepath.Join(uploadDir, filename)
		if err := fasthttp.SaveMultipartFile(fh, dest); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to store file"})
		}

		return c.Status(201).JSON(fiber.Map{
			"attachment_url": BuildAttachmentURL(c, filename),
			"filename":       filename,
			"size":           fh.Size,
		})
	}
}
