// Package models contains GORM persistence models that map to database tables.
// They are kept apart from the domain entities so the domain layer stays free of
// ORM tags; each model has ToDomain/FromDomain mappers used by the repositories.
//
// Tables:
//   - users:          UserModel (credentials, verification, lockout, reset state)
//   - refresh_tokens: RefreshTokenModel (opaque tokens and rotation chain)
//   - email_jobs:     EmailJobModel (durable email queue)
package models
