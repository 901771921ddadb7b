package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"ai-portrait-studio/internal/dataurl"
	"ai-portrait-studio/internal/session"
	"ai-portrait-studio/internal/studio"
	"ai-portrait-studio/internal/style"
	"ai-portrait-studio/internal/upload"
	"ai-portrait-studio/internal/view"
)

//go:embed static/*
var staticFS embed.FS

const (
	sessionCookie = "portrait_session"

	// multipart framing on top of the image itself
	formOverhead = 1 << 20
)

type Options struct {
	Sessions *session.Store
	Acquirer *upload.Acquirer
	Catalog  []style.Definition
	Logger   *slog.Logger
}

type Server struct {
	sessions *session.Store
	acquirer *upload.Acquirer
	catalog  []style.Definition
	logger   *slog.Logger
}

type apiError struct {
	Error string `json:"error"`
}

type ctxKey struct{}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	catalog := opts.Catalog
	if catalog == nil {
		catalog = style.Catalog()
	}

	acquirer := opts.Acquirer
	if acquirer == nil {
		acquirer = upload.New(upload.Options{Logger: logger})
	}

	return &Server{
		sessions: opts.Sessions,
		acquirer: acquirer,
		catalog:  catalog,
		logger:   logger,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)
	r.Use(s.withLogging)

	r.Route("/api", func(r chi.Router) {
		r.Get("/styles", s.handleStyles)

		r.Group(func(r chi.Router) {
			r.Use(s.withSession)
			r.Get("/state", s.handleState)
			r.Post("/upload", s.handleUpload)
			r.Post("/reset", s.handleReset)
			r.Post("/styles/{styleID}/retry", s.handleRetry)
			r.Get("/styles/{styleID}/image", s.handleDownload)
		})
	})

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	r.Handle("/*", http.FileServer(http.FS(staticSub)))

	return r
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	type styleInfo struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	out := make([]styleInfo, 0, len(s.catalog))
	for _, def := range s.catalog {
		out = append(out, styleInfo{ID: def.ID, Name: def.Name, Description: def.Description})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writePage(w, http.StatusOK, studioFrom(r.Context()))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	st := studioFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, upload.MaxBytes+formOverhead)
	if err := r.ParseMultipartForm(formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, apiError{Error: upload.UserMessage(upload.ErrTooLarge)})
			return
		}
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "missing image"})
		return
	}
	defer file.Close()

	err = s.acquirer.Select(st, upload.File{
		Name:      header.Filename,
		MediaType: header.Header.Get("Content-Type"),
		Size:      header.Size,
		Reader:    file,
	})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, upload.ErrTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, apiError{Error: upload.UserMessage(err)})
		return
	}

	s.writePage(w, http.StatusAccepted, st)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	st := studioFrom(r.Context())
	st.Reset()
	s.writePage(w, http.StatusOK, st)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	styleID := chi.URLParam(r, "styleID")
	if _, ok := s.lookup(styleID); !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "unknown style"})
		return
	}

	st := studioFrom(r.Context())
	status := http.StatusOK
	if st.Retry(styleID) {
		status = http.StatusAccepted
	}
	s.writePage(w, status, st)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	def, ok := s.lookup(chi.URLParam(r, "styleID"))
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "unknown style"})
		return
	}

	state, ok := studioFrom(r.Context()).Snapshot().State(def.ID)
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "unknown style"})
		return
	}
	imageURL, ok := state.ImageURL()
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "image not ready"})
		return
	}

	mimeType, data, err := dataurl.Decode(imageURL)
	if err != nil {
		s.logger.Error("stored image is not decodable", "style", def.ID, "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "image unavailable"})
		return
	}

	name := style.DownloadName(def)
	w.Header().Set("content-type", mimeType)
	w.Header().Set("content-disposition", fmt.Sprintf(`attachment; filename="%s.png"; filename*=UTF-8''%s`, def.ID, url.PathEscape(name)))
	w.Header().Set("content-length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) lookup(id string) (style.Definition, bool) {
	for _, def := range s.catalog {
		if def.ID == id {
			return def, true
		}
	}
	return style.Definition{}, false
}

func (s *Server) writePage(w http.ResponseWriter, status int, st *studio.Studio) {
	writeJSON(w, status, view.Build(s.catalog, st.Snapshot()))
}

func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(sessionCookie); err == nil {
			if parsed, err := uuid.Parse(c.Value); err == nil {
				id = parsed.String()
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		st := s.sessions.Get("web:" + id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, st)))
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"dur_ms", time.Since(start).Milliseconds(),
		)
	})
}

func studioFrom(ctx context.Context) *studio.Studio {
	st, _ := ctx.Value(ctxKey{}).(*studio.Studio)
	return st
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
