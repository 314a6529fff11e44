package handlers

import (
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// readUpload returns the bytes of the "image" part, or a status and message
// describing why the upload was rejected.
func readUpload(c *gin.Context, maxSize int64) ([]byte, int, string) {
	file, err := c.FormFile("image")
	if err != nil {
		return nil, http.StatusBadRequest, "image file is required"
	}
	if file.Size > maxSize {
		return nil, http.StatusRequestEntityTooLarge, "image exceeds maximum upload size"
	}
	if !isImageContentType(file.Header.Get("Content-Type")) {
		return nil, http.StatusUnsupportedMediaType, "uploaded file is not an image"
	}

	src, err := file.Open()
	if err != nil {
		return nil, http.StatusBadRequest, "unable to open image"
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxSize+1))
	if err != nil {
		return nil, http.StatusInternalServerError, "failed to read image"
	}
	if int64(len(data)) > maxSize {
		return nil, http.StatusRequestEntityTooLarge, "image exceeds maximum upload size"
	}
	return data, 0, ""
}

func isImageContentType(value string) bool {
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}
