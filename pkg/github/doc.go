// Package github is a small client for the parts of the GitHub REST API that
// back publish authorization: repository permissions, releases, tags, the
// authenticated user, and the OAuth web login.
//
// All calls are made with the publishing user's own token, so a repository
// the user cannot see answers 404 and surfaces as ErrRepoNotFound.
package github
