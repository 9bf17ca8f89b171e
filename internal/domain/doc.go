// Package domain contains the request/document types and the error taxonomy of
// the resume PDF pipeline. Keep this package free of transport (HTTP) and
// infrastructure (Redis/Chrome/Postgres) concerns.
package domain
