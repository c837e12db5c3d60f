package controllers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/angelmondragon/reviewhub-backend/api/validators"
	pkgerrors "github.com/angelmondragon/reviewhub-backend/pkg/errors"
)

const (
	// multipart overhead allowed on top of the file itself
	formOverheadBytes = 1 << 20
	maxFormValueLen   = 4000
)

type uploadedFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// readFormFile pulls one file part out of a multipart body capped at limit
// bytes. Oversized bodies are PayloadTooLarge.
func readFormFile(w http.ResponseWriter, r *http.Request, field string, limit int64) (*uploadedFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverheadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, pkgerrors.Wrap(pkgerrors.CodePayloadTooLarge, err, "upload too large")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form")
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file is required").WithDetails(map[string]string{field: "is required"})
	}
	defer file.Close()

	if header.Size > limit {
		return nil, pkgerrors.New(pkgerrors.CodePayloadTooLarge, "upload too large")
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read upload")
	}
	if int64(len(data)) > limit {
		return nil, pkgerrors.New(pkgerrors.CodePayloadTooLarge, "upload too large")
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &uploadedFile{
		FileName:    filepath.Base(strings.TrimSpace(header.Filename)),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func formValue(r *http.Request, key string) *string {
	value := validators.SanitizeString(r.FormValue(key), maxFormValueLen)
	if value == "" {
		return nil
	}
	return &value
}
