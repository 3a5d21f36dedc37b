package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"texttones/internal/auth"
	"texttones/internal/conversions"
	"texttones/internal/i18n"
	"texttones/internal/observability"
	"texttones/internal/voices"
)

// RequestObserver receives one call per served request.
type RequestObserver interface {
	ObserveRequest(route string, code int, elapsed time.Duration)
}

// Options carries optional server collaborators.
type Options struct {
	// Metrics, when set, observes requests and is served on /metrics.
	Metrics *observability.Metrics
	// HealthChecks are probed by /healthz.
	HealthChecks map[string]observability.HealthCheckFunc
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
	// SessionTTL bounds the session cookie lifetime.
	SessionTTL time.Duration
}

// Server wires HTTP routing for TextTones.
type Server struct {
	logger    zerolog.Logger
	service   *conversions.Service
	verifier  *auth.Verifier
	templates *template.Template
	staticFS  http.FileSystem
	opts      Options
}

// NewServer constructs a chi router implementing http.Handler.
func NewServer(logger zerolog.Logger, service *conversions.Service, verifier *auth.Verifier, templates *template.Template, staticFS http.FileSystem, opts Options) http.Handler {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	srv := &Server{
		logger:    logger.With().Str("component", "http").Logger(),
		service:   service,
		verifier:  verifier,
		templates: templates,
		staticFS:  staticFS,
		opts:      opts,
	}

	var observer RequestObserver
	if opts.Metrics != nil {
		observer = opts.Metrics
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(srv.logger, observer))
	r.Use(middleware.Recoverer)
	r.Use(auth.Middleware(verifier))

	if staticFS != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(srv.staticFS)))
	}
	r.Get("/healthz", observability.HealthHandler(opts.HealthChecks))
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	r.Get("/lang/{lang}", srv.handleSetLanguage)
	r.Get("/signin", srv.handleSignInPage)
	r.Post("/session", srv.handleCreateSession)
	r.Post("/signout", srv.handleSignOut)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequirePage)
		r.Get("/", srv.handleIndex)
		r.Get("/voices", srv.handleVoices)
		r.Post("/conversions", srv.handleConvert)
		r.Get("/conversions/current/download", srv.handleDownloadCurrent)
		r.Get("/dashboard", srv.handleDashboard)
		r.Get("/activity/{index}/download", srv.handleDownloadActivity)
		r.Get("/playback/{handle}", srv.handlePlayback)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAPI)
		r.Get("/voices", srv.handleAPIVoices)
		r.Post("/conversions", srv.handleAPIConvert)
		r.Get("/activity", srv.handleAPIActivity)
	})

	return r
}

// accessLog writes one zerolog line per request and reports it to observer.
func accessLog(logger zerolog.Logger, observer RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			if observer != nil {
				observer.ObserveRequest(route, status, elapsed)
			}

			reqLogger := observability.WithCorrelationID(logger, middleware.GetReqID(r.Context()))
			event := reqLogger.Info()
			if status >= http.StatusInternalServerError {
				event = reqLogger.Warn()
			}
			event.
				Str("method", r.Method).
				Str("route", route).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", elapsed).
				Msg("request served")
		})
	}
}

type pageView struct {
	Title       string
	Body        template.HTML
	Lang        string
	UILanguages []UILanguage
	Principal   *conversions.Principal
}

type UILanguage struct {
	Code string
	Name string
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, title, contentTemplate string, payload any) {
	lang := s.getLanguage(r)
	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, contentTemplate, payload); err != nil {
		s.logger.Error().Err(err).Str("template", contentTemplate).Msg("render template failed")
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}

	data := pageView{
		Title:       title,
		Body:        template.HTML(body.String()),
		Lang:        lang,
		UILanguages: s.getUILanguages(),
	}
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		data.Principal = &p
	}
	s.executeTemplate(w, status, "base.html", data)
}

func (s *Server) renderPartial(w http.ResponseWriter, status int, templateName string, data any) {
	s.executeTemplate(w, status, templateName, data)
}

func (s *Server) executeTemplate(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error().Err(err).Str("template", name).Msg("render template failed")
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.logger.Error().Err(err).Msg("request error")
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func (s *Server) clientError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}

// classify maps a service error to an HTTP status and a message key.
func classify(err error) (int, string) {
	var synth *conversions.SynthesisError
	switch {
	case errors.Is(err, conversions.ErrValidation),
		errors.Is(err, voices.ErrUnknownLanguage),
		errors.Is(err, voices.ErrNoVoicesAvailable):
		return http.StatusBadRequest, "error.validation"
	case errors.Is(err, conversions.ErrBusy), errors.Is(err, conversions.ErrClosed):
		return http.StatusConflict, "error.busy"
	case errors.Is(err, conversions.ErrNotFound):
		return http.StatusNotFound, "error.generic"
	case errors.As(err, &synth):
		return http.StatusBadGateway, "error.synthesis"
	default:
		return http.StatusInternalServerError, "error.generic"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func principal(r *http.Request) conversions.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

func (s *Server) getLanguage(r *http.Request) string {
	// Check cookie first
	if cookie, err := r.Cookie("lang"); err == nil && cookie.Value != "" {
		if isValidLanguage(cookie.Value) {
			return cookie.Value
		}
	}
	// Check query param
	if lang := r.URL.Query().Get("lang"); lang != "" && isValidLanguage(lang) {
		return lang
	}
	// Check Accept-Language header
	if acceptLang := r.Header.Get("Accept-Language"); acceptLang != "" {
		parts := strings.Split(acceptLang, ",")
		if len(parts) > 0 {
			langCode := strings.TrimSpace(strings.Split(parts[0], ";")[0])
			if len(langCode) >= 2 {
				langCode = langCode[:2]
				if isValidLanguage(langCode) {
					return langCode
				}
			}
		}
	}
	return i18n.DefaultLanguage
}

func isValidLanguage(lang string) bool {
	_, ok := i18n.LanguageNames[lang]
	return ok
}

func (s *Server) getUILanguages() []UILanguage {
	result := make([]UILanguage, 0, len(i18n.Supported))
	for _, code := range i18n.Supported {
		result = append(result, UILanguage{
			Code: code,
			Name: i18n.LanguageNames[code],
		})
	}
	return result
}

func (s *Server) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	lang := chi.URLParam(r, "lang")
	if !isValidLanguage(lang) {
		lang = i18n.DefaultLanguage
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "lang",
		Value:    lang,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, localReferer(r), http.StatusSeeOther)
}

// localReferer returns the referring path when it points back at this host,
// and "/" otherwise.
func localReferer(r *http.Request) string {
	ref, err := url.Parse(r.Header.Get("Referer"))
	if err != nil || ref.Path == "" {
		return "/"
	}
	if ref.Scheme != "" && ref.Scheme != "http" && ref.Scheme != "https" {
		return "/"
	}
	if ref.Host != "" && ref.Host != r.Host {
		return "/"
	}
	if !strings.HasPrefix(ref.Path, "/") || strings.HasPrefix(ref.Path, "//") || strings.HasPrefix(ref.Path, "/\\") {
		return "/"
	}
	if ref.RawQuery != "" {
		return ref.Path + "?" + ref.RawQuery
	}
	return ref.Path
}
