// Package domain contains the request schemas and engine contract of the
// gateway. Keep this package free of transport (HTTP) and infrastructure
// (Redis/Postgres/engine client) concerns.
package domain
