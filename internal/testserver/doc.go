// Package testserver implements an in-process fake of the deployment server
// for tests of the deploy client.
//
// It speaks the same contract as the real server:
//   - GET  /health  JSON status, HTTP status configurable to simulate outages
//   - POST /deploy  multipart upload (fields "file" and "project_name")
//   - GET  /deploy  {"projects":[{"name":..., "path":...}]}
//
// Upload responses can be scripted per request to simulate rejections,
// 5xx errors and dropped connections. Accepted uploads are recorded in a
// project.Registry so that the listing reflects what was deployed.
package testserver
