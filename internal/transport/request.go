package transport

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"shop-admin/internal/domain"
	"shop-admin/internal/middleware"
	"shop-admin/internal/service"

	"github.com/cockroachdb/errors"
	"github.com/gabriel-vasile/mimetype"
)

const maxUploadSize = 10 << 20

func isForm(r *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "multipart/form-data" || ct == "application/x-www-form-urlencoded"
}

// decodeRequest fills v from a JSON body or from form fields, then validates
// it. Form values are matched to v's json names and decoded as strings, so
// numeric form fields need string-tolerant types such as decimal.Decimal.
func decodeRequest(r *http.Request, v any) error {
	if !isForm(r) {
		return middleware.DecodeAndValidate(r, v)
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return domain.Invalid("body", "malformed form data")
	}
	fields := make(map[string]string, len(r.Form))
	for k, vals := range r.Form {
		if len(vals) > 0 {
			fields[k] = vals[0]
		}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return errors.Wrap(err, "encoding form fields")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return domain.Invalid(typeErr.Field, "Invalid value")
		}
		return domain.Invalid("body", "malformed form data")
	}
	return middleware.ValidateRequest(v)
}

// readImage returns the optional "image" upload of a multipart request. The
// caller closes the returned file.
func readImage(r *http.Request) (*service.ImageUpload, io.Closer, error) {
	if r.MultipartForm == nil {
		return nil, nil, nil
	}
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, domain.Invalid("image", "unreadable upload")
	}

	if err := checkImage(file); err != nil {
		file.Close()
		return nil, nil, err
	}
	return &service.ImageUpload{Filename: header.Filename, Content: file}, file, nil
}

// checkImage sniffs the upload and rewinds it
func checkImage(file multipart.File) error {
	mt, err := mimetype.DetectReader(file)
	if err != nil {
		return domain.Invalid("image", "unreadable upload")
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "rewinding upload")
	}
	if !strings.HasPrefix(mt.String(), "image/") {
		return domain.Invalid("image", "the image must be a picture file")
	}
	return nil
}
