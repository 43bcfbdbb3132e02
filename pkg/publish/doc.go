// Package publish authorizes writes to the npm registry.
//
// Every mutating npm request (publish, dist-tag change, unpublish) carries a
// publish key minted by this service. Engine.Authorize checks, in order:
//
//  1. the key exists and has not expired
//  2. the key's owner has a linked GitHub identity
//  3. a package-restricted key targets its own package
//  4. the package's current registry document, or the incoming document for
//     a package that does not exist yet, yields a latest version
//  5. the owner can push to every repository declared by the latest version
//     and by each version in the request
//  6. for release-backed keys, a GitHub release or tag exists for the
//     version being published
//
// A rejected request gets a JSON body whose error field is wrapped in a
// banner, since the npm client prints it as-is. An accepted request is
// relayed to the registry with the service's own credentials.
package publish
