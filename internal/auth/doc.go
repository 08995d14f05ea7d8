// Package auth issues and validates the bearer tokens that guard the REST
// and WebSocket API.
//
// Tokens are HS256 JWTs signed with security.jwt.secret and carry one of
// three roles (viewer, operator, admin). Each role maps to a fixed
// permission set; there is no user database.
package auth
