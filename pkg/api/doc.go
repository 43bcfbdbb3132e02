// Package api provides the HTTP server that npm clients and the login
// website talk to.
//
// # Overview
//
// The server sits between the npm CLI and the upstream registry. Reads are
// proxied as they are. Every write (publish, dist-tag changes, unpublish)
// is handed to the publish engine, which checks the presented publish key
// against GitHub before relaying the request with the service account's
// credentials.
//
// # Routes
//
// npm CLI:
//
//	POST   /-/v1/login                          start a web login, returns doneUrl and loginUrl
//	GET    /_/done?ott=                         poll for the token of a web login
//	GET    /-/whoami                            github_user:<login> for a known key
//	GET    /{package}                           proxied packument
//	GET    /_/metadata/{package}                proxied packument for ?write=true reads
//	GET    /-/package/{package}/dist-tags       proxied dist-tags
//	PUT    /{package}                           publish
//	PUT    /-/package/{package}/dist-tags/{tag} dist-tag add
//	DELETE /-/package/{package}/dist-tags/{tag} dist-tag rm
//	PUT    /{package}/-rev/{rev}                unpublish of a version
//	DELETE /{package}/-rev/{rev}                unpublish -f
//	DELETE /{package}/-/{tarball}/-rev/{sha}    tarball removal
//
// Login website (only on instances with login enabled):
//
//	GET    /_/account
//	GET    /_/login-link
//	GET    /oauth/github
//	POST   /logout
//	PUT    /_/token
//	GET    /_/api/v1/tokens
//	DELETE /_/api/v1/token
//
// A path prefixed with /<namespace>/_ns/ is served as if the prefix were
// absent. The namespace becomes the package hint on the login URL, which
// lets an .npmrc scope registry entry pre-fill the token form.
//
// # Usage
//
//	srv, err := api.NewServer(api.Config{
//		PublicURL:    cfg.Registry.PublicURL,
//		LoginURL:     cfg.Login.URL,
//		LoginEnabled: cfg.Login.Enabled,
//		NPMToken:     cfg.Registry.NPMToken,
//	}, api.Dependencies{
//		Store:    store,
//		Engine:   engine,
//		Registry: registryClient,
//		GitHub:   githubClient,
//		OTP:      otp,
//		Logger:   logger,
//	})
//	http.ListenAndServe(":8080", srv)
package api
