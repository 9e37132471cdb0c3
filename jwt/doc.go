// Package jwt issues and verifies the signed access and refresh token pair.
//
// # Token shape
//
// Both tokens are JWTs carrying a "tku" (token use) claim set to "access" or
// "refresh" and signed with separate key material, so a refresh token can
// never pass as an access token even if the keys are shared by mistake.
// Access tokens additionally embed email, username, and full name so callers
// can render a user without a store lookup.
//
// # What this package must NOT do
//
//   - Persist or rotate tokens (the engine and stores own that).
//   - Import any other authkit package.
package jwt
