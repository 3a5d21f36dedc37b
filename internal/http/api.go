package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"texttones/internal/conversions"
)

type apiLanguage struct {
	Code         string   `json:"code"`
	Name         string   `json:"name"`
	Voices       []string `json:"voices"`
	DefaultVoice string   `json:"defaultVoice,omitempty"`
}

type apiVoiceSelection struct {
	Language string   `json:"language"`
	Voices   []string `json:"voices"`
	Voice    string   `json:"voice"`
}

type apiConversionRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Voice    string `json:"voice"`
}

type apiEntry struct {
	Text                    string    `json:"text"`
	Voice                   string    `json:"voice"`
	Language                string    `json:"language"`
	DurationEstimateSeconds int       `json:"durationEstimateSeconds"`
	Timestamp               time.Time `json:"timestamp"`
	AudioURL                string    `json:"audioUrl"`
}

type apiConversionResponse struct {
	PlaybackURL  string       `json:"playbackUrl,omitempty"`
	DownloadURL  string       `json:"downloadUrl,omitempty"`
	Filename     string       `json:"filename,omitempty"`
	Entry        apiEntry     `json:"entry"`
	Saved        bool         `json:"saved"`
	HistoryError string       `json:"history_error,omitempty"`
	Activity     *apiActivity `json:"activity,omitempty"`
}

type apiActivity struct {
	UserID             string     `json:"userId"`
	Email              string     `json:"email,omitempty"`
	DisplayName        string     `json:"displayName,omitempty"`
	PhotoURL           string     `json:"photoURL,omitempty"`
	CreatedAt          *time.Time `json:"createdAt,omitempty"`
	TotalConversions   int        `json:"totalConversions"`
	TotalCharacters    int        `json:"totalCharacters"`
	TotalAudioDuration int        `json:"totalAudioDuration"`
	RecentActivity     []apiEntry `json:"recentActivity"`
}

func (s *Server) handleAPIVoices(w http.ResponseWriter, r *http.Request) {
	catalog := s.service.Catalog()
	code := r.URL.Query().Get("language")
	if code == "" {
		languages := catalog.Languages()
		out := make([]apiLanguage, 0, len(languages))
		for _, lang := range languages {
			item := apiLanguage{Code: lang.Code, Name: lang.DisplayName, Voices: lang.Voices}
			if len(lang.Voices) > 0 {
				item.DefaultVoice = lang.Voices[0]
			}
			out = append(out, item)
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	lang, err := catalog.Lookup(code)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	voice, err := catalog.SelectVoice(code, r.URL.Query().Get("voice"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, apiVoiceSelection{Language: lang.Code, Voices: lang.Voices, Voice: voice})
}

func (s *Server) handleAPIConvert(w http.ResponseWriter, r *http.Request) {
	var req apiConversionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user := principal(r)
	result, err := s.service.Convert(r.Context(), user.UserID, conversions.ConversionRequest{
		Text:         req.Text,
		LanguageCode: req.Language,
		VoiceID:      req.Voice,
	})

	var perr *conversions.PersistenceError
	if err != nil && !errors.As(err, &perr) {
		status, _ := classify(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("conversion failed")
		}
		writeError(w, status, err.Error())
		return
	}

	resp := apiConversionResponse{
		Entry: toAPIEntry(result.Entry),
		Saved: result.Saved,
	}
	if result.Playback.Handle != "" {
		resp.PlaybackURL = playbackURL(result.Playback.Handle)
		resp.DownloadURL = "/conversions/current/download"
		resp.Filename = result.Playback.Filename()
	}
	if perr != nil {
		resp.HistoryError = perr.Error()
	} else {
		activity := toAPIActivity(result.Aggregate)
		resp.Activity = &activity
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIActivity(w http.ResponseWriter, r *http.Request) {
	user := principal(r)
	agg, err := s.service.Activity(r.Context(), user.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("load activity")
		writeError(w, http.StatusServiceUnavailable, "activity unavailable")
		return
	}
	if agg.UserID == "" {
		agg.UserID = user.UserID
	}
	writeJSON(w, http.StatusOK, toAPIActivity(agg))
}

func toAPIEntry(e conversions.ActivityEntry) apiEntry {
	return apiEntry{
		Text:                    e.Text,
		Voice:                   e.Voice,
		Language:                e.Language,
		DurationEstimateSeconds: e.DurationEstimateSeconds,
		Timestamp:               e.Timestamp,
		AudioURL:                e.DataURL(),
	}
}

func toAPIActivity(agg conversions.UserAggregate) apiActivity {
	out := apiActivity{
		UserID:             agg.UserID,
		Email:              agg.Email,
		DisplayName:        agg.DisplayName,
		PhotoURL:           agg.PhotoURL,
		TotalConversions:   agg.TotalConversions,
		TotalCharacters:    agg.TotalCharacters,
		TotalAudioDuration: agg.TotalAudioDurationSeconds,
		RecentActivity:     make([]apiEntry, 0, len(agg.RecentActivity)),
	}
	if !agg.CreatedAt.IsZero() {
		created := agg.CreatedAt
		out.CreatedAt = &created
	}
	for _, e := range agg.RecentActivity {
		out.RecentActivity = append(out.RecentActivity, toAPIEntry(e))
	}
	return out
}
