package api

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"comer/internal/domain"
	"comer/internal/service"
)

const (
	multipartDataField = "data"
	multipartMemory    = 8 << 20
)

// isMultipart reports whether the request carries a multipart form.
func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// decodeForm reads the JSON document in the "data" field of a multipart
// form, or the body itself when the request is plain JSON. limit caps the
// whole request body.
func decodeForm(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	if !isMultipart(r) {
		return decodeJSON(w, r, dst)
	}

	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return domain.Validation("invalid multipart form")
	}
	raw := r.FormValue(multipartDataField)
	if raw == "" {
		return domain.ValidationWithDetails("ValidationError", map[string]string{multipartDataField: "is required"})
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return domain.ValidationWithDetails("ValidationError", map[string]string{multipartDataField: "must be a JSON object"})
	}
	return nil
}

// formFiles reads the files posted under field. It must run after decodeForm.
func formFiles(r *http.Request, field string, maxFiles int) ([]service.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File[field]
	if maxFiles > 0 && len(headers) > maxFiles {
		return nil, domain.Validationf("at most %d files are allowed", maxFiles)
	}

	uploads := make([]service.Upload, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, domain.Validationf("failed to read %s", fh.Filename)
		}
		uploads = append(uploads, service.Upload{Name: fh.Filename, Data: data})
	}
	return uploads, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// uploadLimit is the largest acceptable request for n files.
func uploadLimit(n int, maxFileBytes int64) int64 {
	if n <= 0 {
		n = 1
	}
	return int64(n)*maxFileBytes + maxJSONBody
}
