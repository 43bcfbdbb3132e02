package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/publishgate/pkg/audit"
	"github.com/platinummonkey/publishgate/pkg/auth"
)

func (h *harness) sessionCookie(t *testing.T, s *auth.Session) *http.Cookie {
	t.Helper()
	value, err := h.sessions.Encode(s)
	require.NoError(t, err)
	return &http.Cookie{Name: auth.SessionCookieName, Value: value}
}

func (h *harness) responseSession(t *testing.T, rec *httptest.ResponseRecorder) *auth.Session {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			s, err := h.sessions.Decode(c.Value)
			require.NoError(t, err)
			return s
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func loggedIn(h *harness, t *testing.T, r *http.Request) *http.Request {
	r.AddCookie(h.sessionCookie(t, &auth.Session{Login: "octocat"}))
	return r
}

func TestLoginDisabled(t *testing.T) {
	tests := []struct {
		name     string
		loginURL string
		target   string
		wantCode int
		wantBody string
		wantLoc  string
	}{
		{name: "redirects to login server", loginURL: "https://login.example.com", target: "/_/account", wantCode: http.StatusFound, wantLoc: "https://login.example.com/_/account"},
		{name: "redirect loop guard", loginURL: "https://login.example.com", target: "/_/account?redir=1", wantCode: http.StatusOK, wantBody: "login disabled and there is maybe a redirect loop."},
		{name: "no login server", target: "/_/api/v1/tokens", wantCode: http.StatusOK, wantBody: "these are not the droids you're looking for"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, withLoginDisabled(tt.loginURL))
			rec := h.do(httptest.NewRequest(http.MethodGet, tt.target, nil))
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
			if tt.wantLoc != "" {
				assert.Equal(t, tt.wantLoc, rec.Header().Get("Location"))
			}
		})
	}
}

func TestOAuthCallback_LoginDisabled(t *testing.T) {
	h := newHarness(t, withLoginDisabled(""))

	rec := h.do(httptest.NewRequest(http.MethodGet, "/oauth/github?code=good-code", nil))
	assert.Equal(t, "service disabled.", rec.Body.String())
}

func TestAccount(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/_/account?ott=abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"registryHref":"https://publish.example.com","authenticated":false,"ott":"abc"}`, rec.Body.String())
	assert.Equal(t, "abc", h.responseSession(t, rec).OTT)

	r := httptest.NewRequest(http.MethodGet, "/_/account", nil)
	r.AddCookie(h.sessionCookie(t, &auth.Session{Login: "octocat", OTT: "abc", Flash: `{"severity":"success"}`}))
	rec = h.do(r)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"registryHref": "https://publish.example.com",
		"authenticated": true,
		"login": "octocat",
		"ott": "abc",
		"flash": "{\"severity\":\"success\"}"
	}`, rec.Body.String())

	after := h.responseSession(t, rec)
	assert.Empty(t, after.Flash, "flash is shown once")
	assert.Equal(t, "octocat", after.Login)
}

func TestLoginLink(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/_/login-link", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["link"], "/login/oauth/authorize?")
	assert.Contains(t, body["link"], "client_id=client")
}

func TestLogout(t *testing.T) {
	h := newHarness(t)

	rec := h.do(loggedIn(h, t, httptest.NewRequest(http.MethodPost, "/logout", nil)))
	assert.Equal(t, `"ok"`, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.SessionCookieName, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)

	logouts := h.audit.ofType(audit.EventTypeLogout)
	require.Len(t, logouts, 1)
	assert.Equal(t, "octocat", logouts[0].Username)
}

func TestOAuthCallback(t *testing.T) {
	h := newHarness(t)

	r := httptest.NewRequest(http.MethodGet, "/oauth/github?code=good-code", nil)
	r.AddCookie(h.sessionCookie(t, &auth.Session{LoginRedirect: "/_/token?resume=1"}))
	rec := h.do(r)

	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, "/_/token?resume=1", rec.Header().Get("Location"))

	sess := h.responseSession(t, rec)
	assert.Equal(t, "octocat", sess.Login)
	assert.Empty(t, sess.LoginRedirect)
	assert.JSONEq(t, `{"severity":"success","message":"Logged in as octocat"}`, sess.Flash)

	user, err := h.store.GetUser(t.Context(), "octocat")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "gho_user", user.Token)

	logins := h.audit.ofType(audit.EventTypeLogin)
	require.Len(t, logins, 1)
	assert.Equal(t, "octocat", logins[0].Username)
	assert.Equal(t, "/oauth/github", logins[0].Path)
}

func TestOAuthCallback_Failures(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/oauth/github", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "error processing login")

	rec = h.do(httptest.NewRequest(http.MethodGet, "/oauth/github?code=bad-code", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "error logging in")

	user, err := h.store.GetUser(t.Context(), "octocat")
	require.NoError(t, err)
	assert.Nil(t, user)

	failed := h.audit.ofType(audit.EventTypeLoginFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "github code exchange failed", failed[0].Message)
	assert.Empty(t, h.audit.ofType(audit.EventTypeLogin))
}

func TestCreateToken_NotLoggedIn(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodPut, "/_/token", strings.NewReader(`{"type":"ttl"}`)))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, "/_/token", h.responseSession(t, rec).LoginRedirect)
}

func TestCreateToken(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantCode    int
		wantError   string
		wantPackage string
		wantExpires bool
		wantRelease bool
	}{
		{name: "ttl", body: `{"type":"ttl"}`, wantCode: http.StatusOK, wantExpires: true},
		{name: "package", body: `{"packageName":"  foo  "}`, wantCode: http.StatusOK, wantPackage: "foo"},
		{name: "release", body: `{"type":"release","packageName":"foo","monorepo":true}`, wantCode: http.StatusOK, wantPackage: "foo", wantRelease: true},
		{name: "package name required", body: `{"packageName":"   "}`, wantCode: http.StatusBadRequest, wantError: "package name required"},
		{name: "unknown type", body: `{"type":"forever"}`, wantCode: http.StatusBadRequest, wantError: "type is invalid (oneof)"},
		{name: "malformed", body: `{`, wantCode: http.StatusBadRequest, wantError: "invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			rec := h.do(loggedIn(h, t, httptest.NewRequest(http.MethodPut, "/_/token", strings.NewReader(tt.body))))
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			keys, err := h.store.GetPublishKeysByUser(t.Context(), "octocat")
			require.NoError(t, err)

			if tt.wantError != "" {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Contains(t, body["error"], tt.wantError)
				assert.Empty(t, keys)
				return
			}

			require.Len(t, keys, 1)
			key := keys[0]
			assert.Equal(t, tt.wantPackage, key.Package)
			assert.Equal(t, tt.wantRelease, key.ReleaseAs2FA)
			assert.Equal(t, tt.wantRelease, key.Monorepo)
			if tt.wantExpires {
				require.NotNil(t, key.Expiration)
				assert.Equal(t, testNow.Add(auth.TTLTokenLifetime), *key.Expiration)
			} else {
				assert.Nil(t, key.Expiration)
			}

			var body messageResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, `Created token "`+key.Value+`" this token will never be shown again, copy it somewhere safe.`, body.Message)

			created := h.audit.ofType(audit.EventTypeTokenCreate)
			require.Len(t, created, 1)
			assert.Equal(t, key.Prefix(), created[0].TokenPrefix)
			assert.Equal(t, tt.wantPackage, created[0].Package)
			assert.NotContains(t, created[0].Message, key.Value)
		})
	}
}

func TestCreateToken_CompletesHandoff(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodPost, "/-/v1/login", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var login loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	ott := login.DoneURL[strings.Index(login.DoneURL, "ott=")+len("ott="):]

	r := httptest.NewRequest(http.MethodPut, "/_/token", strings.NewReader(`{"type":"ttl","ott":"`+ott+`"}`))
	r.AddCookie(h.sessionCookie(t, &auth.Session{Login: "octocat", OTT: ott}))
	rec = h.do(r)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"message":"Token created! You may close this page and return to terminal."}`, rec.Body.String())
	assert.Empty(t, h.responseSession(t, rec).OTT)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/_/done?ott="+ott, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var done tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &done))
	require.NotEmpty(t, done.Token)

	// the token handed to the CLI is the stored publish key
	key, err := h.store.GetPublishKey(t.Context(), done.Token)
	require.NoError(t, err)
	require.NotNil(t, key)
	assert.Equal(t, "octocat", key.Username)

	r = httptest.NewRequest(http.MethodGet, "/-/whoami", nil)
	r.Header.Set("Authorization", "Bearer "+done.Token)
	rec = h.do(r)
	assert.JSONEq(t, `{"username":"github_user:octocat"}`, rec.Body.String())
}

func TestListTokens(t *testing.T) {
	h := newHarness(t)
	expired := testNow.Add(-time.Minute)
	live := testNow.Add(time.Hour)
	h.addKey(t, &auth.PublishKey{Value: "aaaaaaaa-1", Created: testNow.Add(-3 * time.Hour), Package: "foo", ReleaseAs2FA: true})
	h.addKey(t, &auth.PublishKey{Value: "bbbbbbbb-2", Created: testNow.Add(-2 * time.Hour), Expiration: &live})
	h.addKey(t, &auth.PublishKey{Value: "cccccccc-3", Created: testNow.Add(-time.Hour), Expiration: &expired})
	h.addKey(t, &auth.PublishKey{Value: "dddddddd-4", Username: "someone-else"})

	rec := h.do(loggedIn(h, t, httptest.NewRequest(http.MethodGet, "/_/api/v1/tokens", nil)))
	require.Equal(t, http.StatusOK, rec.Code)

	first := strconv.FormatInt(testNow.Add(-3*time.Hour).UnixMilli(), 10)
	second := strconv.FormatInt(testNow.Add(-2*time.Hour).UnixMilli(), 10)
	assert.JSONEq(t, `{"error":false,"data":[
		{"created":`+first+`,"prefix":"aaaaa","package":"foo","release-backed":true},
		{"created":`+second+`,"prefix":"bbbbb","expiration":`+strconv.FormatInt(live.UnixMilli(), 10)+`}
	]}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "aaaaaaaa-1")
}

func TestListTokens_NotLoggedIn(t *testing.T) {
	h := newHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/_/api/v1/tokens", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteToken(t *testing.T) {
	h := newHarness(t)
	created := testNow.Add(-time.Hour)
	h.addKey(t, &auth.PublishKey{Value: "abcdefgh-token", Created: created})
	createdMs := strconv.FormatInt(created.UnixMilli(), 10)

	tests := []struct {
		name     string
		body     string
		referer  string
		wantCode int
		wantBody string
	}{
		{name: "cross site", body: `{"prefix":"abcde","created":` + createdMs + `}`, referer: "https://evil.example.com/", wantCode: http.StatusBadRequest},
		{name: "malformed", body: `nope`, wantCode: http.StatusBadRequest, wantBody: `{"error":"malformed json request body"}`},
		{name: "short prefix", body: `{"prefix":"abc","created":` + createdMs + `}`, wantCode: http.StatusBadRequest, wantBody: `{"error":"missing token prefix or created in json request body"}`},
		{name: "wrong created", body: `{"prefix":"abcde","created":1}`, wantCode: http.StatusOK, wantBody: `{"error":"couldn't find key","data":false}`},
		{name: "deleted", body: `{"prefix":"abcde","created":` + createdMs + `}`, referer: "https://login.example.com/_/manage", wantCode: http.StatusOK, wantBody: `{"data":true}`},
		{name: "already gone", body: `{"prefix":"abcde","created":` + createdMs + `}`, wantCode: http.StatusOK, wantBody: `{"error":"couldn't find key","data":false}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := loggedIn(h, t, httptest.NewRequest(http.MethodDelete, "/_/api/v1/token", strings.NewReader(tt.body)))
			if tt.referer != "" {
				r.Header.Set("Referer", tt.referer)
			}
			rec := h.do(r)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
		})
	}

	key, err := h.store.GetPublishKey(t.Context(), "abcdefgh-token")
	require.NoError(t, err)
	assert.Nil(t, key)

	revoked := h.audit.ofType(audit.EventTypeTokenRevoke)
	require.Len(t, revoked, 1)
	assert.Equal(t, "abcde", revoked[0].TokenPrefix)
	assert.Equal(t, "octocat", revoked[0].Username)
}

func TestDeleteToken_CrossSiteMessage(t *testing.T) {
	h := newHarness(t)

	r := loggedIn(h, t, httptest.NewRequest(http.MethodDelete, "/_/api/v1/token", strings.NewReader(`{}`)))
	r.Header.Set("Origin", "https://evil.example.com")
	rec := h.do(r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "please refresh the page and try your request again. support id: ")
}
