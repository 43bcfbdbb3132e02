package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/publishgate/pkg/async"
	"github.com/platinummonkey/publishgate/pkg/audit"
	"github.com/platinummonkey/publishgate/pkg/auth"
	"github.com/platinummonkey/publishgate/pkg/contextkeys"
	"github.com/platinummonkey/publishgate/pkg/httputil"
	"github.com/platinummonkey/publishgate/pkg/observability"
	"github.com/platinummonkey/publishgate/pkg/packument"
	"github.com/platinummonkey/publishgate/pkg/registry"
)

type loginResponse struct {
	DoneURL  string `json:"doneUrl"`
	LoginURL string `json:"loginUrl"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type whoamiResponse struct {
	Username string `json:"username,omitempty"`
}

// startLogin handles "npm login": it parks a fresh publish key behind a
// handoff id and sends the CLI to the login website and the polling URL.
func (s *Server) startLogin(w http.ResponseWriter, r *http.Request) {
	id, err := s.store.SaveHandoffKey(r.Context(), auth.GenerateToken())
	if err != nil {
		s.serverError(w, r, err, "failed to save handoff key")
		return
	}

	loginURL := s.config.LoginURL + "?ott=" + url.QueryEscape(id)
	if ns := contextkeys.GetNamespace(r.Context()); ns != "" {
		loginURL += "&package=" + url.QueryEscape(ns)
	}
	httputil.WriteSuccess(w, loginResponse{
		DoneURL:  s.config.PublicURL + "/_/done?ott=" + url.QueryEscape(id),
		LoginURL: loginURL,
	})
}

// loginDone is polled by the CLI until the website login completes.
func (s *Server) loginDone(w http.ResponseWriter, r *http.Request) {
	ott := httputil.ParseQueryString(r, "ott", "")
	var h *auth.HandoffKey
	if ott != "" {
		var err error
		if h, err = s.store.GetHandoffKey(r.Context(), ott); err != nil {
			s.serverError(w, r, err, "failed to load handoff key")
			return
		}
	}

	switch {
	case h == nil:
		// A 200 without a token keeps the CLI from falling back to an
		// interactive couchdb login.
		w.Header().Set("npm-notice", "The one time token expired or is invalid.")
		httputil.WriteSuccess(w, tokenResponse{})
	case !h.Complete:
		w.Header().Set("Retry-After", "3")
		httputil.WriteJSON(w, http.StatusAccepted, struct{}{})
	default:
		httputil.WriteSuccess(w, tokenResponse{Token: h.Value})
	}
}

func (s *Server) whoami(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		httputil.WriteSuccess(w, whoamiResponse{})
		return
	}
	key, err := s.store.GetPublishKey(r.Context(), token)
	if err != nil {
		s.serverError(w, r, err, "failed to load publish key")
		return
	}
	if key == nil {
		httputil.WriteSuccess(w, whoamiResponse{})
		return
	}
	httputil.WriteSuccess(w, whoamiResponse{Username: "github_user:" + key.Username})
}

// proxyMetadata serves GET /<package> for names the registry could hold.
func (s *Server) proxyMetadata(w http.ResponseWriter, r *http.Request) {
	name, err := httputil.ParsePathString(r, "package")
	if err != nil || !packument.ValidName(name) {
		http.NotFound(w, r)
		return
	}
	s.proxy(w, r, "/"+registry.EscapeName(name), r.URL.RawQuery)
}

// proxyWriteMetadata serves reads made with ?write=true, which npm
// deprecate uses before it writes.
func (s *Server) proxyWriteMetadata(w http.ResponseWriter, r *http.Request) {
	name, err := httputil.ParsePathString(r, "package")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	s.proxy(w, r, "/"+registry.EscapeName(name), "")
}

func (s *Server) proxyDistTags(w http.ResponseWriter, r *http.Request) {
	name, err := httputil.ParsePathString(r, "package")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	s.proxy(w, r, "/-/package/"+registry.EscapeName(name)+"/dist-tags", r.URL.RawQuery)
}

func (s *Server) proxy(w http.ResponseWriter, r *http.Request, path, rawQuery string) {
	if err := s.registry.Proxy(r.Context(), w, path, rawQuery); err != nil {
		s.serverError(w, r, err, "registry proxy failed")
	}
}

func (s *Server) access(w http.ResponseWriter, r *http.Request) {
	httputil.WriteText(w, http.StatusOK, "not supported")
}

// authorizeWrite runs every registry write through the publish engine. The
// engine writes the response itself.
func (s *Server) authorizeWrite(w http.ResponseWriter, r *http.Request) {
	name, err := httputil.ParsePathString(r, "package")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	decision := s.engine.Authorize(w, r, name)
	s.metrics.RecordDecision(observability.RouteName(r), decision.StatusCode)

	event := s.event(r, audit.EventTypePublish, audit.StatusForCode(decision.StatusCode), decision.User)
	event.TokenPrefix = decision.KeyPrefix
	event.Package = name
	event.StatusCode = decision.StatusCode
	event.Message = decision.Error
	if decision.NewPackage {
		event.Metadata = map[string]interface{}{"new_package": true}
	}
	s.record(r.Context(), event)

	if decision.StatusCode == http.StatusOK && decision.NewPackage {
		log := observability.FromContext(r.Context(), s.logger).WithField("package", name)
		tfa := s.event(r, audit.EventTypeRequireTwoFactor, audit.EventStatusSuccess, decision.User)
		tfa.Package = name
		async.SafeGo(r.Context(), log, s.config.TwoFactorTimeout, "require-2fa", func(ctx context.Context) error {
			status, body, err := s.requireTwoFactor(ctx, name)
			if err != nil {
				tfa.Status = audit.EventStatusFailure
				tfa.Message = err.Error()
				s.record(ctx, tfa)
				return err
			}
			tfa.StatusCode = status
			if status != http.StatusOK {
				log.WithFields(logrus.Fields{
					"status": status,
					"body":   string(body),
				}).Warn("registry refused to require 2fa on new package")
				tfa.Status = audit.EventStatusFailure
				s.record(ctx, tfa)
				return nil
			}
			log.Info("required 2fa on new package")
			s.record(ctx, tfa)
			return nil
		})
	}
}

func (s *Server) requireTwoFactor(ctx context.Context, name string) (int, []byte, error) {
	code, err := s.otp.Code()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to generate otp code: %w", err)
	}
	return s.registry.RequireTwoFactor(ctx, name, s.config.NPMToken, code)
}

// requireTwoFactorHandler turns on required 2FA for ?packageName= on demand.
func (s *Server) requireTwoFactorHandler(w http.ResponseWriter, r *http.Request) {
	name := httputil.ParseQueryString(r, "packageName", "")
	status, _, err := s.requireTwoFactor(r.Context(), name)

	event := s.event(r, audit.EventTypeRequireTwoFactor, audit.StatusForCode(status), "")
	event.Package = name
	event.StatusCode = status
	if err != nil {
		event.Status = audit.EventStatusFailure
		event.Message = err.Error()
	}
	s.record(r.Context(), event)

	if err != nil {
		observability.FromContext(r.Context(), s.logger).
			WithError(err).
			WithField("package", name).
			Error("require 2fa failed")
		httputil.WriteText(w, http.StatusOK, `{"error":"server error setting required 2fa on package"}`)
		return
	}
	if status == http.StatusOK {
		httputil.WriteText(w, status, `"ok"`)
		return
	}
	httputil.WriteText(w, status, "oh no")
}

