package items

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"localshare/core"
	"localshare/gateway"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// UploadField is the repeatable multipart field carrying files.
const UploadField = "files"

type (
	TextRequest struct {
		Text *string `json:"text"`
	}

	TextResponse struct {
		Message string    `json:"message"`
		Item    core.Item `json:"item"`
	}

	UploadResponse struct {
		Message string              `json:"message"`
		Items   []core.Item         `json:"items"`
		Errors  []gateway.FileError `json:"errors,omitempty"`
	}

	ErrorResponse struct {
		Error string `json:"error"`
	}
)

func respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: msg})
}

// HandleList returns every shared item in insertion order.
func HandleList(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := gw.Items(r.Context())
		if err != nil {
			logrus.WithError(err).Error("Failed to list items")
			respondError(w, r, http.StatusInternalServerError, "Failed to list items")
			return
		}
		if list == nil {
			list = []core.Item{}
		}
		render.JSON(w, r, list)
	}
}

// HandleText shares a text snippet.
func HandleText(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TextRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logrus.WithError(err).Warn("Failed to decode text request")
			respondError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Text == nil {
			respondError(w, r, http.StatusBadRequest, "Missing 'text' field")
			return
		}

		item, err := gw.SubmitText(r.Context(), *req.Text)
		if err != nil {
			if core.IsValidation(err) {
				respondError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			logrus.WithError(err).Error("Failed to add text")
			respondError(w, r, http.StatusInternalServerError, "Failed to add text")
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, TextResponse{Message: "Text added", Item: item})
	}
}

type multipartParts struct {
	reader *multipart.Reader
	part   *multipart.Part
}

func (m *multipartParts) NextPart() (*gateway.Part, error) {
	if m.part != nil {
		m.part.Close()
		m.part = nil
	}
	for {
		p, err := m.reader.NextPart()
		if err != nil {
			return nil, err
		}
		if p.FormName() != UploadField {
			p.Close()
			continue
		}
		m.part = p
		return &gateway.Part{Filename: p.FileName(), Body: p}, nil
	}
}

// HandleUpload stores every file in the multipart field "files". The response
// lists stored items and per-file failures; it is an error only when nothing
// could be stored.
func HandleUpload(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reader, err := r.MultipartReader()
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "Expected multipart form upload")
			return
		}

		parts := &multipartParts{reader: reader}
		result, err := gw.Upload(r.Context(), parts)
		if parts.part != nil {
			parts.part.Close()
		}

		switch {
		case err == nil:
			msg := "Files uploaded"
			if len(result.Errors) > 0 {
				msg = strconv.Itoa(len(result.Items)) + " of " +
					strconv.Itoa(len(result.Items)+len(result.Errors)) + " files uploaded"
			}
			render.Status(r, http.StatusCreated)
			render.JSON(w, r, UploadResponse{Message: msg, Items: result.Items, Errors: result.Errors})
		case errors.Is(err, gateway.ErrNothingStored):
			status := http.StatusInternalServerError
			if result.AllValidation() {
				status = http.StatusBadRequest
			}
			render.Status(r, status)
			render.JSON(w, r, UploadResponse{Message: "Upload failed", Items: result.Items, Errors: result.Errors})
		case core.IsValidation(err):
			respondError(w, r, http.StatusBadRequest, err.Error())
		default:
			logrus.WithError(err).Error("Upload failed")
			respondError(w, r, http.StatusInternalServerError, "Upload failed")
		}
	}
}

// HandleDownload streams a stored file as an attachment.
func HandleDownload(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := chi.URLParam(r, "filename")
		if r.URL.RawPath != "" {
			// chi matched on the escaped path
			if unescaped, err := url.PathUnescape(filename); err == nil {
				filename = unescaped
			}
		}
		log := logrus.WithField("filename", filename)

		f, info, err := gw.Download(filename)
		if err != nil {
			switch {
			case core.IsNotFound(err):
				log.Warn("Requested file not found")
				http.Error(w, "File not found", http.StatusNotFound)
			case core.IsValidation(err):
				log.Warn("Rejected download path")
				http.Error(w, "Invalid filename", http.StatusBadRequest)
			default:
				log.WithError(err).Error("Failed to open file")
				http.Error(w, "Failed to read file", http.StatusInternalServerError)
			}
			return
		}
		defer f.Close()

		mtype, err := mimetype.DetectReader(f)
		if err != nil {
			log.WithError(err).Error("Failed to read file")
			http.Error(w, "Failed to read file", http.StatusInternalServerError)
			return
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			log.WithError(err).Error("Failed to rewind file")
			http.Error(w, "Failed to read file", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", mtype.String())
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
		http.ServeContent(w, r, filename, info.ModTime(), f)
		log.Debug("File downloaded")
	}
}
