package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/publishgate/pkg/audit"
	"github.com/platinummonkey/publishgate/pkg/auth"
	"github.com/platinummonkey/publishgate/pkg/contextkeys"
	"github.com/platinummonkey/publishgate/pkg/httputil"
	"github.com/platinummonkey/publishgate/pkg/observability"
	"github.com/platinummonkey/publishgate/pkg/storage"
)

type accountResponse struct {
	RegistryHref  string `json:"registryHref"`
	Authenticated bool   `json:"authenticated"`
	Login         string `json:"login,omitempty"`
	OTT           string `json:"ott,omitempty"`
	Flash         string `json:"flash,omitempty"`
}

type flashMessage struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// CreateTokenRequest is the body of PUT /_/token. An empty type issues a
// package-restricted key.
type CreateTokenRequest struct {
	Type        string `json:"type" validate:"omitempty,oneof=ttl release package"`
	PackageName string `json:"packageName" validate:"omitempty,max=214"`
	Monorepo    bool   `json:"monorepo"`
	OTT         string `json:"ott" validate:"omitempty,max=64"`
}

// DeleteTokenRequest identifies a key by its creation time and visible prefix.
type DeleteTokenRequest struct {
	Prefix  string `json:"prefix" validate:"required,min=5"`
	Created int64  `json:"created" validate:"required"`
}

type tokenView struct {
	Created       int64  `json:"created"`
	Prefix        string `json:"prefix"`
	Package       string `json:"package,omitempty"`
	Expiration    *int64 `json:"expiration,omitempty"`
	ReleaseBacked bool   `json:"release-backed,omitempty"`
}

type tokenListResponse struct {
	Error interface{} `json:"error"`
	Data  []tokenView `json:"data"`
}

type deleteTokenResponse struct {
	Error string `json:"error,omitempty"`
	Data  bool   `json:"data"`
}

// web gates a login website route and loads the browser session into the
// request context.
func (s *Server) web(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.redirectToLoginServer(w, r) {
			return
		}
		h(w, r.WithContext(contextkeys.WithSession(r.Context(), s.sessions.Load(r))))
	}
}

// redirectToLoginServer answers for instances that do not serve the login
// website. It reports whether the response was written.
func (s *Server) redirectToLoginServer(w http.ResponseWriter, r *http.Request) bool {
	if s.config.LoginEnabled {
		return false
	}
	switch {
	case r.URL.Query().Get("redir") != "":
		httputil.WriteText(w, http.StatusOK, "login disabled and there is maybe a redirect loop.")
	case s.config.LoginURL != "":
		http.Redirect(w, r, s.config.LoginURL+r.URL.Path, http.StatusFound)
	default:
		httputil.WriteText(w, http.StatusOK, "these are not the droids you're looking for")
	}
	return true
}

func (s *Server) session(r *http.Request) *auth.Session {
	if sess, ok := r.Context().Value(contextkeys.SessionKey).(*auth.Session); ok && sess != nil {
		return sess
	}
	if s.sessions != nil {
		return s.sessions.Load(r)
	}
	return &auth.Session{}
}

// account reports the session state to the website. An ?ott= from the CLI
// login link is remembered so the token page can complete the handoff.
func (s *Server) account(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	resp := accountResponse{
		RegistryHref: s.config.PublicURL,
	}
	if resp.RegistryHref == "" {
		resp.RegistryHref = defaultRegistryHref
	}

	dirty := false
	if ott := r.URL.Query().Get("ott"); ott != "" {
		sess.OTT = ott
		dirty = true
	}
	resp.OTT = sess.OTT

	if sess.Flash != "" {
		resp.Flash = sess.Flash
		sess.Flash = ""
		dirty = true
	}
	if sess.Authenticated() {
		resp.Login = sess.Login
		resp.Authenticated = true
	}

	if dirty {
		if err := s.sessions.Save(w, sess); err != nil {
			s.serverError(w, r, err, "failed to save session")
			return
		}
	}
	httputil.WriteSuccess(w, resp)
}

func (s *Server) loginLink(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"link": s.oauth.AuthCodeURL("")})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if s.sessions != nil {
		if sess := s.sessions.Load(r); sess.Authenticated() {
			s.record(r.Context(), s.event(r, audit.EventTypeLogout, audit.EventStatusSuccess, sess.Login))
		}
		s.sessions.Clear(w)
	}
	httputil.WriteText(w, http.StatusOK, `"ok"`)
}

// oauthCallback finishes the GitHub web flow: it stores the user's GitHub
// token for later permission checks and logs the browser in.
func (s *Server) oauthCallback(w http.ResponseWriter, r *http.Request) {
	if !s.config.LoginEnabled {
		httputil.WriteText(w, http.StatusOK, "service disabled.")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`error processing login. <a href="/">try again</a>.`))
		return
	}

	log := observability.FromContext(r.Context(), s.logger)
	fail := func(err error, msg string) {
		log.WithError(err).Warn(msg)
		event := s.event(r, audit.EventTypeLoginFailed, audit.EventStatusFailure, "")
		event.StatusCode = http.StatusUnauthorized
		event.Message = msg
		s.record(r.Context(), event)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`error logging in. <br/><a href="/">please try again</a> `))
	}

	token, err := s.oauth.Exchange(r.Context(), code)
	if err != nil {
		fail(err, "github code exchange failed")
		return
	}
	user, err := s.github.GetUser(r.Context(), token)
	if err != nil {
		fail(err, "failed to load github user")
		return
	}
	if err := s.store.CreateUser(r.Context(), user.Login, token); err != nil {
		fail(err, "failed to save user")
		return
	}

	sess := s.sessions.Load(r)
	sess.Login = user.Login
	flash, _ := json.Marshal(flashMessage{Severity: "success", Message: "Logged in as " + user.Login})
	sess.Flash = string(flash)
	redirect := sess.LoginRedirect
	sess.LoginRedirect = ""
	if redirect == "" {
		redirect = "/"
	}
	if err := s.sessions.Save(w, sess); err != nil {
		s.serverError(w, r, err, "failed to save session")
		return
	}
	log.WithField("user", user.Login).Info("user logged in")
	s.record(r.Context(), s.event(r, audit.EventTypeLogin, audit.EventStatusSuccess, user.Login))
	http.Redirect(w, r, redirect, http.StatusFound)
}

// createToken issues a publish key for the logged in user. With the ott of
// a pending CLI login, the key takes the handoff's value and the CLI picks
// it up from /_/done.
func (s *Server) createToken(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	if !sess.Authenticated() {
		sess.LoginRedirect = r.URL.RequestURI()
		if err := s.sessions.Save(w, sess); err != nil {
			s.serverError(w, r, err, "failed to save session")
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	var req CreateTokenRequest
	if err := httputil.ParseAndValidate(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	typ := auth.TokenType(req.Type)
	if typ == "" {
		typ = auth.TokenTypePackage
	}
	name := strings.TrimSpace(req.PackageName)
	if typ != auth.TokenTypeTTL && name == "" {
		httputil.WriteBadRequest(w, "package name required")
		return
	}

	key, err := auth.NewPublishKey(sess.Login, auth.KeyOptions{
		Type:     typ,
		Package:  name,
		Monorepo: req.Monorepo,
	}, s.config.Now())
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()
	var handoff *auth.HandoffKey
	if req.OTT != "" {
		if handoff, err = s.store.GetHandoffKey(ctx, req.OTT); err != nil {
			s.serverError(w, r, err, "failed to load handoff key")
			return
		}
	}
	if handoff != nil {
		key.Value = handoff.Value
	}
	if err := s.store.SavePublishKey(ctx, key); err != nil {
		s.serverError(w, r, err, "failed to save publish key")
		return
	}

	log := observability.FromContext(ctx, s.logger).WithFields(logrus.Fields{
		"user":    sess.Login,
		"type":    typ,
		"package": name,
	})
	event := s.event(r, audit.EventTypeTokenCreate, audit.EventStatusSuccess, sess.Login)
	event.TokenPrefix = key.Prefix()
	event.Package = name
	event.Metadata = map[string]interface{}{
		"type":     string(typ),
		"monorepo": key.Monorepo,
		"cli":      handoff != nil,
	}
	s.record(ctx, event)
	if handoff == nil {
		log.Info("publish key created")
		httputil.WriteSuccess(w, messageResponse{
			Message: `Created token "` + key.Value + `" this token will never be shown again, copy it somewhere safe.`,
		})
		return
	}

	if err := s.store.CompleteHandoffKey(ctx, req.OTT); err != nil {
		s.serverError(w, r, err, "failed to complete handoff")
		return
	}
	sess.OTT = ""
	if err := s.sessions.Save(w, sess); err != nil {
		log.WithError(err).Warn("failed to clear ott from session")
	}
	log.Info("publish key created for cli login")
	httputil.WriteSuccess(w, messageResponse{
		Message: "Token created! You may close this page and return to terminal.",
	})
}

// listTokens shows the user's live keys. Only the prefix of each value
// ever leaves the server.
func (s *Server) listTokens(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	if !sess.Authenticated() {
		httputil.WriteUnauthorized(w, "login required")
		return
	}

	keys, err := s.store.GetPublishKeysByUser(r.Context(), sess.Login)
	if err != nil {
		code := uuid.NewString()
		observability.FromContext(r.Context(), s.logger).
			WithError(err).
			WithFields(logrus.Fields{"user": sess.Login, "support_id": code}).
			Error("error loading user tokens list")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "error loading tokens. contact support with code "+code)
		return
	}

	now := s.config.Now()
	views := make([]tokenView, 0, len(keys))
	for _, k := range keys {
		if k.Expired(now) {
			continue
		}
		obf := k.Obfuscated()
		v := tokenView{
			Created:       obf.CreatedMillis(),
			Prefix:        obf.Value,
			Package:       obf.Package,
			ReleaseBacked: obf.ReleaseAs2FA,
		}
		if obf.Expiration != nil {
			exp := obf.Expiration.UnixMilli()
			v.Expiration = &exp
		}
		views = append(views, v)
	}
	httputil.WriteSuccess(w, tokenListResponse{Error: false, Data: views})
}

// deleteToken revokes one of the user's keys, named by creation time and prefix.
func (s *Server) deleteToken(w http.ResponseWriter, r *http.Request) {
	if s.crossSite(w, r) {
		return
	}
	sess := s.session(r)
	if !sess.Authenticated() {
		httputil.WriteUnauthorized(w, "login required")
		return
	}

	var req DeleteTokenRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "malformed json request body")
		return
	}
	if err := httputil.Validator().Struct(req); err != nil {
		httputil.WriteBadRequest(w, "missing token prefix or created in json request body")
		return
	}

	ctx := r.Context()
	key, err := s.store.GetObfuscatedPublishKey(ctx, sess.Login, time.UnixMilli(req.Created), req.Prefix)
	if err == nil && key != nil {
		err = s.store.DeletePublishKey(ctx, key.Value)
		if errors.Is(err, storage.ErrNotFound) {
			key, err = nil, nil
		}
	}
	if err != nil {
		code := uuid.NewString()
		observability.FromContext(ctx, s.logger).
			WithError(err).
			WithFields(logrus.Fields{"user": sess.Login, "support_id": code}).
			Error("error deleting token")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "error loading tokens. contact support with code "+code)
		return
	}
	if key == nil {
		httputil.WriteSuccess(w, deleteTokenResponse{Error: "couldn't find key"})
		return
	}
	observability.FromContext(ctx, s.logger).WithField("user", sess.Login).Info("publish key deleted")
	event := s.event(r, audit.EventTypeTokenRevoke, audit.EventStatusSuccess, sess.Login)
	event.TokenPrefix = key.Prefix()
	event.Package = key.Package
	s.record(ctx, event)
	httputil.WriteSuccess(w, deleteTokenResponse{Data: true})
}

// crossSite rejects requests whose Referer or Origin is not the login
// website. It reports whether the response was written.
func (s *Server) crossSite(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Referer")
	if origin == "" {
		origin = r.Header.Get("Origin")
	}
	if origin == "" || strings.HasPrefix(origin, s.config.LoginURL) {
		return false
	}
	id := uuid.NewString()
	observability.FromContext(r.Context(), s.logger).WithFields(logrus.Fields{
		"support_id": id,
		"origin":     origin,
	}).Warn("token service csrf error")
	httputil.WriteBadRequest(w, "please refresh the page and try your request again. support id: "+id)
	return true
}
