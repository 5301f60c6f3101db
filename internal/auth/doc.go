// Package auth provides bearer token authentication for the Matter bridge API.
//
// It implements a 3-tier role model (viewer → operator → admin) with:
//   - HS256 JWT access tokens carrying the caller's role
//   - Static role-permission mapping (compile-time, no database lookup)
//
// Tokens are minted out of band with `matterbridge token` and validated by
// signature only. There is no user store: the subject is a free-form label
// recorded in request logs.
package auth
