package publish

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/publishgate/pkg/auth"
	"github.com/platinummonkey/publishgate/pkg/github"
	"github.com/platinummonkey/publishgate/pkg/httputil"
	"github.com/platinummonkey/publishgate/pkg/packument"
)

// KeyStore resolves publish keys and the GitHub identities behind them.
// Both lookups return nil, nil when the record does not exist.
type KeyStore interface {
	GetPublishKey(ctx context.Context, value string) (*auth.PublishKey, error)
	GetUser(ctx context.Context, name string) (*auth.User, error)
}

// PackumentFetcher reads the current registry document for a package. It
// returns nil, nil when the registry does not know the package.
type PackumentFetcher interface {
	Packument(ctx context.Context, name string) (*packument.Packument, error)
}

// SourceControl answers permission and release questions on behalf of a user.
type SourceControl interface {
	GetRepository(ctx context.Context, repo, token string) (*github.Repository, error)
	FindRelease(ctx context.Context, repo, token string, candidates []string) (string, error)
}

// Relay forwards an authorized request to the registry and streams the
// answer back. A nil body means the request body has not been read yet.
// An error means nothing was written to w.
type Relay interface {
	Forward(ctx context.Context, w http.ResponseWriter, r *http.Request, body []byte) (int, error)
}

// Decision is the outcome of one authorization, kept for logs and metrics.
// The HTTP response has already been written when it is returned.
type Decision struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error,omitempty"`
	NewPackage bool   `json:"newPackage,omitempty"`
	// User and KeyPrefix are empty when the key was not resolved.
	User      string `json:"user,omitempty"`
	KeyPrefix string `json:"keyPrefix,omitempty"`
}

// Config holds the engine settings.
type Config struct {
	// UserRegistryURL is the address users log in to, quoted in the
	// wrong-package message.
	UserRegistryURL string
	Now             func() time.Time
	Logger          logrus.FieldLogger
}

// Engine decides whether a write to the registry may go through and, when
// it may, hands the request to the relay.
type Engine struct {
	keys        KeyStore
	registry    PackumentFetcher
	scm         SourceControl
	relay       Relay
	registryURL string
	now         func() time.Time
	logger      logrus.FieldLogger
}

// NewEngine wires an Engine.
func NewEngine(keys KeyStore, registry PackumentFetcher, scm SourceControl, relay Relay, cfg Config) *Engine {
	e := &Engine{
		keys:        keys,
		registry:    registry,
		scm:         scm,
		relay:       relay,
		registryURL: cfg.UserRegistryURL,
		now:         cfg.Now,
		logger:      cfg.Logger,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = logrus.StandardLogger()
	}
	return e
}

// Authorize runs the publish checks for pkgName and either writes a failure
// response or relays the request upstream.
func (e *Engine) Authorize(w http.ResponseWriter, r *http.Request, pkgName string) Decision {
	ctx := r.Context()
	log := e.logger.WithFields(logrus.Fields{
		"package": pkgName,
		"method":  r.Method,
	})

	req := &pendingBody{r: r}
	newPackage, err := e.authorize(ctx, req, pkgName, log)
	if err != nil {
		return req.stamp(e.fail(w, asStatusError(err), log))
	}

	status, err := e.relay.Forward(ctx, w, r, req.body)
	if err != nil {
		log.WithError(err).Error("relay to registry failed")
		return req.stamp(e.fail(w, Errorf(http.StatusInternalServerError, "error sending publish to the registry"), log))
	}
	log.WithFields(logrus.Fields{
		"status":      status,
		"new_package": newPackage,
	}).Info("publish relayed")
	return req.stamp(Decision{StatusCode: status, NewPackage: newPackage})
}

func (e *Engine) authorize(ctx context.Context, req *pendingBody, pkgName string, log logrus.FieldLogger) (bool, error) {
	token := auth.BearerToken(req.r.Header.Get("Authorization"))
	if token == "" {
		return false, Errorf(http.StatusUnauthorized, "publish key not found")
	}
	key, err := e.keys.GetPublishKey(ctx, token)
	if err != nil {
		log.WithError(err).Error("publish key lookup failed")
		return false, Errorf(http.StatusInternalServerError, "error looking up publish key")
	}
	if key == nil {
		return false, Errorf(http.StatusUnauthorized, "publish key not found")
	}
	req.keyPrefix = key.Prefix()
	if key.Expired(e.now()) {
		return false, Errorf(http.StatusUnauthorized, "publish key expired")
	}

	user, err := e.keys.GetUser(ctx, key.Username)
	if err != nil {
		log.WithError(err).Error("user lookup failed")
		return false, Errorf(http.StatusInternalServerError, "error looking up user")
	}
	if user == nil {
		return false, Errorf(http.StatusUnauthorized, "publish token unauthenticated")
	}
	req.user = user.Name
	log = log.WithFields(logrus.Fields{
		"user":        user.Name,
		"key_package": key.Package,
	})
	log.Info("attempting publish")

	if key.Package != "" && key.Package != pkgName {
		log.Info("token cannot publish this package")
		return false, Errorf(http.StatusUnauthorized,
			"This token cannot publish npm package %s you'll need to\nnpm login --registry %s\nagain to publish this package.",
			pkgName, e.registryURL)
	}

	doc, err := e.registry.Packument(ctx, pkgName)
	if err != nil {
		log.WithError(err).Error("fetching packument failed")
		return false, Errorf(http.StatusInternalServerError, "error fetching %s from the registry", pkgName)
	}

	newPackage := doc == nil || doc.Unpublished()
	var (
		latest   *packument.Version
		incoming *packument.Packument
	)
	if newPackage {
		body, err := req.drain()
		if err != nil {
			return false, err
		}
		incoming, err = packument.Parse(body)
		if err != nil {
			log.WithError(err).Info("parsing publish body failed")
			return false, Errorf(http.StatusBadRequest, "malformed json package document in publish")
		}
		latest = incoming.DistTagVersion("latest")
	} else {
		latest = packument.FindLatest(doc)
	}
	if latest == nil {
		log.Warn("missing latest version")
		return false, Errorf(http.StatusInternalServerError,
			"not supported yet. package is rather strange. its not new and has no latest version")
	}

	if !newPackage {
		body, err := req.drain()
		if err != nil {
			return false, err
		}
		// dist-tag updates and bodiless deletes are not JSON objects and
		// contribute no repositories. Any object is reconciled version by
		// version.
		if incoming, err = packument.Parse(body); err != nil {
			log.WithError(err).Debug("write body is not a packument")
			incoming = nil
		}
	}

	repos, latestRepo, err := e.collectRepositories(latest, incoming, newPackage, user.Name, log)
	if err != nil {
		return false, err
	}

	for _, repo := range repos {
		resp, err := e.scm.GetRepository(ctx, repo.Name, user.Token)
		if err != nil {
			log.WithError(err).WithField("repo", repo.Name).Info("repository lookup failed")
			return false, Errorf(http.StatusBadRequest, "repository %s doesn't exist or %s doesn't have access.", repo.URL, user.Name)
		}
		if !resp.Permissions.CanPublish() {
			return false, Errorf(http.StatusBadRequest, "%s cannot push repo %s. push permission required to publish.", user.Name, repo.URL)
		}
	}

	if key.ReleaseAs2FA {
		if latestRepo == nil {
			return false, Errorf(http.StatusBadRequest,
				"in order to publish the latest version must have a repository %s can access.", user.Name)
		}
		log.Info("token uses releases as 2FA")
		body, err := req.drain()
		if err != nil {
			return false, err
		}
		var prev *packument.Packument
		if !newPackage {
			prev = doc
		}
		if err := e.enforceMatchingRelease(ctx, pkgName, latestRepo.Name, user.Token, prev, body, key.Monorepo); err != nil {
			if _, ok := err.(*StatusError); !ok {
				log.WithError(err).Error("release verification failed")
			}
			return false, err
		}
	}

	return newPackage, nil
}

// collectRepositories gathers every repository whose permissions must hold:
// the one declared by the latest published version and one per version in
// the incoming document. Order is preserved and duplicates dropped.
func (e *Engine) collectRepositories(latest *packument.Version, incoming *packument.Packument, newPackage bool, userName string, log logrus.FieldLogger) ([]packument.GitHubRepo, *packument.GitHubRepo, error) {
	var (
		repos      []packument.GitHubRepo
		seen       = map[string]bool{}
		declared   bool
		latestRepo *packument.GitHubRepo
	)
	add := func(ref *packument.RepositoryRef) (packument.GitHubRepo, bool) {
		declared = true
		gh, ok := packument.ResolveGitHub(ref)
		if !ok {
			log.WithField("repository", ref.String()).Info("repository does not point to github")
			return gh, false
		}
		if !seen[gh.Name] {
			seen[gh.Name] = true
			repos = append(repos, gh)
		}
		return gh, true
	}

	if ref := latest.PermissionsRepository(); ref != nil {
		if gh, ok := add(ref); ok {
			latestRepo = &gh
		}
	}

	if incoming != nil {
		versions := make([]string, 0, len(incoming.Versions))
		for v := range incoming.Versions {
			versions = append(versions, v)
		}
		sort.Strings(versions)
		for _, v := range versions {
			manifest := incoming.Versions[v]
			if manifest == nil {
				continue
			}
			ref := manifest.PermissionsRepository()
			if ref == nil {
				if newPackage {
					continue
				}
				return nil, nil, Errorf(http.StatusBadRequest, "version %s in publish must have a repository %s can access.", v, userName)
			}
			add(ref)
		}
	}

	if len(repos) == 0 {
		if declared {
			return nil, nil, Errorf(http.StatusBadRequest,
				"in order to publish the latest version on npm must have a repository pointing to github")
		}
		return nil, nil, Errorf(http.StatusBadRequest,
			"in order to publish the latest version must have a repository %s can access.", userName)
	}
	return repos, latestRepo, nil
}

func (e *Engine) fail(w http.ResponseWriter, se *StatusError, log logrus.FieldLogger) Decision {
	log.WithField("status", se.Code).Info(se.Message)
	if err := httputil.WriteJSON(w, se.Code, FailureBody{
		Error:      Banner(se.Message),
		StatusCode: se.Code,
	}); err != nil {
		log.WithError(err).Warn("writing error response failed")
	}
	return Decision{StatusCode: se.Code, Error: se.Message}
}

// pendingBody reads the request body at most once and remembers who is
// publishing.
type pendingBody struct {
	r    *http.Request
	body []byte

	user      string
	keyPrefix string
}

func (p *pendingBody) stamp(d Decision) Decision {
	d.User = p.user
	d.KeyPrefix = p.keyPrefix
	return d
}

func (p *pendingBody) drain() ([]byte, error) {
	if p.body != nil {
		return p.body, nil
	}
	if p.r.Body == nil {
		p.body = []byte{}
		return p.body, nil
	}
	b, err := io.ReadAll(p.r.Body)
	if err != nil {
		return nil, Errorf(http.StatusBadRequest, "error reading publish body: %v", err)
	}
	if b == nil {
		b = []byte{}
	}
	p.body = b
	return b, nil
}

// String helps when a decision ends up in a log line.
func (d Decision) String() string {
	if d.Error != "" {
		return fmt.Sprintf("%d %s", d.StatusCode, d.Error)
	}
	return fmt.Sprintf("%d new=%t", d.StatusCode, d.NewPackage)
}
