// Package git keeps the document clone inside the workspace up to date and
// moves it between revisions.
//
// Two backends implement the same operations:
//   - Client uses go-git in process (the default);
//   - CLI shells out to the git executable, for kerberos (SPNEGO) access
//     that go-git cannot speak, or when the settings ask for it.
//
// Network operations (clone, fetch) are retried on transient failures only.
// Errors are returned as typed values (AuthError, NotFoundError, ...) wrapped
// into ClassifiedErrors by ClassifyGitError.
package git
