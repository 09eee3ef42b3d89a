// Package auth provides operator authentication and authorisation.
//
// Operators present an HS256 bearer token carrying a subject and one of two
// roles: colaborador (monitor and connect devices) or administrador (also
// delete devices and edit the broker configuration). Tokens are issued by
// the "vigilant token" command and validated by signature only.
//
// The role-permission mapping is static and lives in permissions.go.
package auth
