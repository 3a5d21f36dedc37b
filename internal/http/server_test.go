package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"texttones/internal/audio"
	"texttones/internal/auth"
	"texttones/internal/conversions"
	"texttones/internal/observability"
	"texttones/internal/storage"
	"texttones/internal/tts"
	"texttones/internal/ui"
	"texttones/internal/voices"
)

const testSecret = "server-test-secret-long-enough-for-hs256"

var fixedNow = time.UnixMilli(1714564800123)

var playbackPattern = regexp.MustCompile(`/playback/([0-9a-f-]+)`)

type synthFunc func(ctx context.Context, req conversions.SynthesisRequest) ([]byte, error)

func (f synthFunc) Synthesize(ctx context.Context, req conversions.SynthesisRequest) ([]byte, error) {
	return f(ctx, req)
}

type flakyStore struct {
	*storage.MemoryStore
	recordErr error
	fetchErr  error
}

func (f *flakyStore) Record(ctx context.Context, userID string, entry conversions.ActivityEntry) (conversions.UserAggregate, error) {
	if f.recordErr != nil {
		return conversions.UserAggregate{}, f.recordErr
	}
	return f.MemoryStore.Record(ctx, userID, entry)
}

func (f *flakyStore) Fetch(ctx context.Context, userID string) (conversions.UserAggregate, error) {
	if f.fetchErr != nil {
		return conversions.UserAggregate{}, f.fetchErr
	}
	return f.MemoryStore.Fetch(ctx, userID)
}

type testServer struct {
	handler  http.Handler
	verifier *auth.Verifier
	store    *flakyStore
	registry *audio.PlaybackRegistry
	metrics  *observability.Metrics
	service  *conversions.Service
}

func newTestServer(t *testing.T, synth conversions.Synthesizer) *testServer {
	t.Helper()
	return newLoggedTestServer(t, synth, zerolog.Nop())
}

func newLoggedTestServer(t *testing.T, synth conversions.Synthesizer, logger zerolog.Logger) *testServer {
	t.Helper()

	if synth == nil {
		synth = tts.NewStubClient()
	}
	templates, err := ui.ParseTemplates()
	require.NoError(t, err)

	ts := &testServer{
		verifier: auth.NewVerifier(testSecret, "texttones"),
		store:    &flakyStore{MemoryStore: storage.NewMemoryStore()},
		registry: audio.NewPlaybackRegistry(),
	}
	ts.metrics = observability.NewMetrics(ts.registry.Live)

	ts.service = conversions.NewService(conversions.Config{
		Catalog:     voices.Default(),
		Synthesizer: synth,
		Store:       ts.store,
		Playback:    ts.registry,
		Recorder:    ts.metrics,
		Logger:      zerolog.Nop(),
		Now:         func() time.Time { return fixedNow },
	})
	t.Cleanup(ts.service.Close)

	ts.handler = NewServer(logger, ts.service, ts.verifier, templates, ui.StaticFiles(), Options{Metrics: ts.metrics})
	return ts
}

func (ts *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := ts.verifier.Issue(conversions.Principal{
		UserID:      userID,
		Email:       userID + "@example.com",
		DisplayName: "Test " + userID,
	}, time.Hour)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, userID string, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if userID != "" {
		req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: ts.token(t, userID)})
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func formRequest(method, target string, values url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func convertForm(text, language, voice string) url.Values {
	return url.Values{"text": {text}, "language": {language}, "voice": {voice}}
}

func TestAnonymousAccess(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, "", httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/signin", rec.Header().Get("Location"))

	rec = ts.do(t, "", httptest.NewRequest(http.MethodGet, "/api/activity", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, "", httptest.NewRequest(http.MethodGet, "/signin", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `action="/session"`)

	rec = ts.do(t, "", httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	token := ts.token(t, "alice")
	rec := ts.do(t, "", formRequest(http.MethodPost, "/session", url.Values{"token": {token}}))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, auth.SessionCookie, cookies[0].Name)
	require.Equal(t, token, cookies[0].Value)
	require.True(t, cookies[0].HttpOnly)

	profile, err := ts.store.Fetch(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", profile.Email)
	require.Equal(t, "Test alice", profile.DisplayName)

	rec = ts.do(t, "alice", formRequest(http.MethodPost, "/conversions", convertForm("Hello", "en-US", "Joanna")))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, ts.registry.Live())

	rec = ts.do(t, "alice", httptest.NewRequest(http.MethodPost, "/signout", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/signin", rec.Header().Get("Location"))
	require.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
	require.Zero(t, ts.registry.Live())
}

func TestSessionRejectsBadToken(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, "", formRequest(http.MethodPost, "/session", url.Values{"token": {"forged"}}))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "Sign-in failed")
	require.Empty(t, rec.Result().Cookies())
}

func TestIndexAndVoicePicker(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, "bob", httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `value="en-US" selected`)
	require.Contains(t, body, `value="Joanna" selected`)

	rec = ts.do(t, "bob", httptest.NewRequest(http.MethodGet, "/voices?language=de-DE&voice=Joanna", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `value="Vicki" selected`)
	require.NotContains(t, rec.Body.String(), `value="Joanna"`)

	rec = ts.do(t, "bob", httptest.NewRequest(http.MethodGet, "/voices?language=de-DE&voice=Hans", nil))
	require.Contains(t, rec.Body.String(), `value="Hans" selected`)

	rec = ts.do(t, "bob", httptest.NewRequest(http.MethodGet, "/voices?language=xx-XX", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConvertPlaybackAndDownloads(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, "carol", formRequest(http.MethodPost, "/conversions", convertForm("Hello world", "en-US", "Joanna")))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "could not be saved")

	match := playbackPattern.FindStringSubmatch(rec.Body.String())
	require.Len(t, match, 2)

	wantAudio, err := tts.NewStubClient().Synthesize(context.Background(), conversions.SynthesisRequest{
		Text: "Hello world", LanguageCode: "en-US", VoiceID: "Joanna",
	})
	require.NoError(t, err)

	rec = ts.do(t, "carol", httptest.NewRequest(http.MethodGet, match[0], nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, audio.MIMEType, rec.Header().Get("Content-Type"))
	require.Equal(t, wantAudio, rec.Body.Bytes())

	rec = ts.do(t, "dave", httptest.NewRequest(http.MethodGet, match[0], nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, "carol", httptest.NewRequest(http.MethodGet, "/conversions/current/download", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `attachment; filename="en-US-Joanna-1714564800123.mp3"`, rec.Header().Get("Content-Disposition"))
	require.Equal(t, wantAudio, rec.Body.Bytes())

	rec = ts.do(t, "carol", httptest.NewRequest(http.MethodGet, "/activity/0/download", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, wantAudio, rec.Body.Bytes())

	rec = ts.do(t, "carol", httptest.NewRequest(http.MethodGet, "/activity/3/download", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, "carol", httptest.NewRequest(http.MethodGet, "/activity/x/download", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "carol", httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Hello world")
	require.Contains(t, rec.Body.String(), "data:audio/mpeg;base64,")
	require.Contains(t, rec.Body.String(), `href="/activity/0/download"`)
}

func TestConvertReplacesPlayback(t *testing.T) {
	ts := newTestServer(t, nil)

	first := ts.do(t, "erin", formRequest(http.MethodPost, "/conversions", convertForm("One", "en-US", "Joanna")))
	second := ts.do(t, "erin", formRequest(http.MethodPost, "/conversions", convertForm("Two", "de-DE", "Hans")))
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, 1, ts.registry.Live())

	old := playbackPattern.FindString(first.Body.String())
	rec := ts.do(t, "erin", httptest.NewRequest(http.MethodGet, old, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConvertErrors(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		ts := newTestServer(t, nil)
		rec := ts.do(t, "u", formRequest(http.MethodPost, "/conversions", convertForm("   ", "en-US", "Joanna")))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "Please enter some text")

		rec = ts.do(t, "u", formRequest(http.MethodPost, "/conversions", convertForm("Hi", "en-US", "Hans")))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("synthesis", func(t *testing.T) {
		ts := newTestServer(t, synthFunc(func(context.Context, conversions.SynthesisRequest) ([]byte, error) {
			return nil, &tts.APIError{StatusCode: http.StatusForbidden, Code: "http_403", Message: "bad key"}
		}))
		rec := ts.do(t, "u", formRequest(http.MethodPost, "/conversions", convertForm("Hi", "en-US", "Joanna")))
		require.Equal(t, http.StatusBadGateway, rec.Code)
		require.Contains(t, rec.Body.String(), "Speech synthesis failed")
		require.Zero(t, ts.registry.Live())
	})

	t.Run("persistence", func(t *testing.T) {
		ts := newTestServer(t, nil)
		ts.store.recordErr = errors.New("database unavailable")

		rec := ts.do(t, "u", formRequest(http.MethodPost, "/conversions", convertForm("Hi", "en-US", "Joanna")))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "could not be saved")
		require.Regexp(t, playbackPattern, rec.Body.String())
		require.Equal(t, 1, ts.registry.Live())
	})
}

func TestConvertAfterSignOutRendersNoPlayer(t *testing.T) {
	var ts *testServer
	ts = newTestServer(t, synthFunc(func(ctx context.Context, req conversions.SynthesisRequest) ([]byte, error) {
		ts.service.SignOut("frank")
		return tts.NewStubClient().Synthesize(ctx, req)
	}))

	rec := ts.do(t, "frank", formRequest(http.MethodPost, "/conversions", convertForm("Hi", "en-US", "Joanna")))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.NotContains(t, body, "/playback/")
	require.NotContains(t, body, "<audio")
	require.NotContains(t, body, "/conversions/current/download")
	require.Contains(t, body, "The session ended before playback was ready.")
	require.Zero(t, ts.registry.Live())

	req := httptest.NewRequest(http.MethodPost, "/api/conversions", strings.NewReader(`{"text":"Hi","language":"en-US","voice":"Joanna"}`))
	rec = ts.do(t, "frank", req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "playbackUrl")
	require.NotContains(t, rec.Body.String(), "filename")
}

func TestDashboardStoreFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.store.fetchErr = errors.New("database unavailable")

	rec := ts.do(t, "u", httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "Something went wrong")
}

func TestAPIFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, "api", httptest.NewRequest(http.MethodGet, "/api/voices", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var languages []apiLanguage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&languages))
	require.Equal(t, "en-US", languages[0].Code)
	require.Equal(t, "Joanna", languages[0].DefaultVoice)

	rec = ts.do(t, "api", httptest.NewRequest(http.MethodGet, "/api/voices?language=de-DE&voice=Joanna", nil))
	var selection apiVoiceSelection
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&selection))
	require.Equal(t, "Vicki", selection.Voice)

	req := httptest.NewRequest(http.MethodPost, "/api/conversions", strings.NewReader(`{"text":"Guten Tag","language":"de-DE","voice":"Hans"}`))
	req.Header.Set("Authorization", "Bearer "+ts.token(t, "api"))
	rec = ts.do(t, "", req)
	require.Equal(t, http.StatusOK, rec.Code)

	var converted apiConversionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&converted))
	require.True(t, converted.Saved)
	require.Empty(t, converted.HistoryError)
	require.Equal(t, "de-DE-Hans-1714564800123.mp3", converted.Filename)
	require.Equal(t, 1, converted.Entry.DurationEstimateSeconds)
	require.True(t, strings.HasPrefix(converted.Entry.AudioURL, "data:audio/mpeg;base64,"))
	require.NotNil(t, converted.Activity)
	require.Equal(t, 1, converted.Activity.TotalConversions)
	require.Equal(t, 9, converted.Activity.TotalCharacters)

	rec = ts.do(t, "api", httptest.NewRequest(http.MethodGet, "/api/activity", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var activity apiActivity
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&activity))
	require.Equal(t, "api", activity.UserID)
	require.Len(t, activity.RecentActivity, 1)
	require.Equal(t, "Guten Tag", activity.RecentActivity[0].Text)
}

func TestAPIConvertErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/conversions", strings.NewReader(body))
		return ts.do(t, "api", req)
	}

	require.Equal(t, http.StatusBadRequest, post(`{`).Code)
	require.Equal(t, http.StatusBadRequest, post(`{"text":"","language":"en-US","voice":"Joanna"}`).Code)
	require.Equal(t, http.StatusBadRequest, post(`{"text":"hi","language":"xx-XX","voice":"Joanna"}`).Code)

	ts.store.recordErr = errors.New("database unavailable")
	rec := post(`{"text":"hi","language":"en-US","voice":"Joanna"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp apiConversionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.False(t, resp.Saved)
	require.Contains(t, resp.HistoryError, "database unavailable")
	require.Nil(t, resp.Activity)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, "m", formRequest(http.MethodPost, "/conversions", convertForm("Hi", "en-US", "Joanna")))

	rec := ts.do(t, "", httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `texttones_conversions_total{outcome="success"} 1`)
	require.Contains(t, string(body), `texttones_http_requests_total{code="200",route="/conversions"} 1`)
}

func TestAccessLogCarriesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	ts := newLoggedTestServer(t, nil, zerolog.New(&buf))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-42")
	ts.do(t, "", req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "req-42", line["correlation_id"])
	require.Equal(t, "/healthz", line["route"])
	require.Equal(t, "request served", line["message"])
}

func TestSetLanguageRedirect(t *testing.T) {
	ts := newTestServer(t, nil)

	cases := []struct {
		referer string
		want    string
	}{
		{"", "/"},
		{"http://example.com/dashboard", "/dashboard"},
		{"http://example.com/?language=de-DE", "/?language=de-DE"},
		{"/dashboard", "/dashboard"},
		{"https://evil.test/phish", "/"},
		{"//evil.test/phish", "/"},
		{"/\\evil.test", "/"},
		{"javascript:alert(1)", "/"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/lang/de", nil)
		if tc.referer != "" {
			req.Header.Set("Referer", tc.referer)
		}
		rec := ts.do(t, "", req)
		require.Equal(t, http.StatusSeeOther, rec.Code, tc.referer)
		require.Equal(t, tc.want, rec.Header().Get("Location"), tc.referer)
		require.Equal(t, "de", rec.Result().Cookies()[0].Value)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: empty", conversions.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", voices.ErrUnknownLanguage), http.StatusBadRequest},
		{conversions.ErrBusy, http.StatusConflict},
		{conversions.ErrClosed, http.StatusConflict},
		{fmt.Errorf("x: %w", conversions.ErrNotFound), http.StatusNotFound},
		{&conversions.SynthesisError{Reason: "boom"}, http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := classify(tc.err)
		require.Equal(t, tc.status, status, tc.err.Error())
	}
}
