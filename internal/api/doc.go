// Package api hosts the operator HTTP server. Routes:
//   - GET /healthz and /readyz for liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/programs?status=... lists catalog programs by status.
//   - GET /v1/programs/{id} returns one program.
//   - POST /v1/programs/{id}/recover re-marks a program ARCHIVABLE.
//   - GET /v1/archives lists recently finished archives.
package api
