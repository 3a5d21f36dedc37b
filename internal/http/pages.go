package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"texttones/internal/audio"
	"texttones/internal/auth"
	"texttones/internal/conversions"
	"texttones/internal/i18n"
	"texttones/internal/voices"
)

type voicePicker struct {
	Lang          string
	Languages     []voices.Language
	LanguageCode  string
	Voices        []string
	SelectedVoice string
}

type resultView struct {
	Lang         string
	Error        string
	PlaybackURL  string
	DownloadURL  string
	Filename     string
	HistoryError bool
}

type indexView struct {
	Lang    string
	Picker  voicePicker
	Busy    bool
	Current *resultView
}

type dashboardView struct {
	Lang      string
	Error     string
	Aggregate conversions.UserAggregate
}

type signinView struct {
	Lang  string
	Error bool
}

// picker resolves the selector state for languageCode, keeping voice when it
// belongs to the language.
func (s *Server) picker(lang, languageCode, voice string) (voicePicker, error) {
	catalog := s.service.Catalog()
	languages := catalog.Languages()
	if languageCode == "" && len(languages) > 0 {
		languageCode = languages[0].Code
	}

	entry, err := catalog.Lookup(languageCode)
	if err != nil {
		return voicePicker{}, err
	}
	selected, err := catalog.SelectVoice(languageCode, voice)
	if err != nil {
		return voicePicker{}, err
	}
	return voicePicker{
		Lang:          lang,
		Languages:     languages,
		LanguageCode:  languageCode,
		Voices:        entry.Voices,
		SelectedVoice: selected,
	}, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	lang := s.getLanguage(r)
	user := principal(r)

	picker, err := s.picker(lang, r.URL.Query().Get("language"), r.URL.Query().Get("voice"))
	if err != nil {
		picker, err = s.picker(lang, "", "")
		if err != nil {
			s.serverError(w, err)
			return
		}
	}

	view := indexView{
		Lang:   lang,
		Picker: picker,
		Busy:   s.service.Status(user.UserID).Phase != conversions.PhaseIdle,
	}
	if current, ok := s.service.CurrentPlayback(user.UserID); ok {
		view.Current = &resultView{
			Lang:        lang,
			PlaybackURL: playbackURL(current.Handle),
			DownloadURL: "/conversions/current/download",
			Filename:    current.Filename(),
		}
	}
	s.renderPage(w, r, http.StatusOK, i18n.Get(lang, "app.title"), "index.html", view)
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	lang := s.getLanguage(r)
	picker, err := s.picker(lang, r.FormValue("language"), r.FormValue("voice"))
	if err != nil {
		status, _ := classify(err)
		s.clientError(w, status, err.Error())
		return
	}
	s.renderPartial(w, http.StatusOK, "voices.html", picker)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	lang := s.getLanguage(r)
	if err := r.ParseForm(); err != nil {
		s.renderPartial(w, http.StatusBadRequest, "result.html", resultView{Lang: lang, Error: "error.validation"})
		return
	}

	user := principal(r)
	result, err := s.service.Convert(r.Context(), user.UserID, conversions.ConversionRequest{
		Text:         r.FormValue("text"),
		LanguageCode: r.FormValue("language"),
		VoiceID:      r.FormValue("voice"),
	})

	var perr *conversions.PersistenceError
	if err != nil && !errors.As(err, &perr) {
		status, key := classify(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("conversion failed")
		}
		s.renderPartial(w, status, "result.html", resultView{Lang: lang, Error: key})
		return
	}

	view := resultView{Lang: lang, HistoryError: perr != nil}
	// A session closed mid-conversion keeps no playback reference.
	if result.Playback.Handle != "" {
		view.PlaybackURL = playbackURL(result.Playback.Handle)
		view.DownloadURL = "/conversions/current/download"
		view.Filename = result.Playback.Filename()
	}
	s.renderPartial(w, http.StatusOK, "result.html", view)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	lang := s.getLanguage(r)
	user := principal(r)

	agg, err := s.service.Activity(r.Context(), user.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("load dashboard")
		s.renderPage(w, r, http.StatusServiceUnavailable, i18n.Get(lang, "dashboard.title"), "dashboard.html", dashboardView{
			Lang:  lang,
			Error: "error.generic",
		})
		return
	}
	if agg.Email == "" {
		agg.Email = user.Email
	}
	if agg.DisplayName == "" {
		agg.DisplayName = user.DisplayName
	}
	if agg.PhotoURL == "" {
		agg.PhotoURL = user.PhotoURL
	}

	s.renderPage(w, r, http.StatusOK, i18n.Get(lang, "dashboard.title"), "dashboard.html", dashboardView{
		Lang:      lang,
		Aggregate: agg,
	})
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	user := principal(r)
	handle := audio.Handle(chi.URLParam(r, "handle"))

	playback, data, err := s.service.OpenPlayback(user.UserID, handle)
	if err != nil {
		s.clientError(w, http.StatusNotFound, "playback not found")
		return
	}
	w.Header().Set("Content-Type", audio.MIMEType)
	w.Header().Set("Cache-Control", "private, no-store")
	http.ServeContent(w, r, playback.Filename(), playback.CreatedAt, bytes.NewReader(data))
}

func (s *Server) handleDownloadCurrent(w http.ResponseWriter, r *http.Request) {
	user := principal(r)
	current, ok := s.service.CurrentPlayback(user.UserID)
	if !ok {
		s.clientError(w, http.StatusNotFound, "no conversion to download")
		return
	}
	playback, data, err := s.service.OpenPlayback(user.UserID, current.Handle)
	if err != nil {
		s.clientError(w, http.StatusNotFound, "no conversion to download")
		return
	}
	writeAttachment(w, playback.Filename(), data)
}

func (s *Server) handleDownloadActivity(w http.ResponseWriter, r *http.Request) {
	user := principal(r)
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.clientError(w, http.StatusBadRequest, "invalid activity index")
		return
	}

	entry, data, err := s.service.ActivityAudio(r.Context(), user.UserID, index)
	switch {
	case errors.Is(err, conversions.ErrNotFound):
		s.clientError(w, http.StatusNotFound, "activity not found")
		return
	case errors.Is(err, audio.ErrDecode):
		s.logger.Warn().Err(err).Str("user_id", user.UserID).Int("index", index).Msg("stored audio is corrupt")
		s.clientError(w, http.StatusUnprocessableEntity, "stored audio is unreadable")
		return
	case err != nil:
		s.serverError(w, err)
		return
	}
	writeAttachment(w, conversions.DownloadFilename(entry.Language, entry.Voice, entry.Timestamp), data)
}

func (s *Server) handleSignInPage(w http.ResponseWriter, r *http.Request) {
	lang := s.getLanguage(r)
	if _, ok := auth.PrincipalFrom(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.renderPage(w, r, http.StatusOK, i18n.Get(lang, "signin.title"), "signin.html", signinView{Lang: lang})
}

// handleCreateSession exchanges an identity token for a session cookie and
// makes sure the user's profile exists.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	lang := s.getLanguage(r)
	token := strings.TrimSpace(r.FormValue("token"))
	if token == "" {
		token = auth.TokenFromRequest(r)
	}

	p, err := s.verifier.Verify(token)
	if err != nil {
		s.logger.Info().Err(err).Msg("sign-in rejected")
		s.renderPage(w, r, http.StatusUnauthorized, i18n.Get(lang, "signin.title"), "signin.html", signinView{Lang: lang, Error: true})
		return
	}
	if _, err := s.service.SignIn(r.Context(), p); err != nil {
		// The session still works without a stored profile.
		s.logger.Error().Err(err).Str("user_id", p.UserID).Msg("profile not stored")
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.opts.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		s.service.SignOut(p.UserID)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/signin", http.StatusSeeOther)
}

func playbackURL(h audio.Handle) string {
	return "/playback/" + string(h)
}

func writeAttachment(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", audio.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}
