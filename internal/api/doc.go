// Package api contains the HTTP handlers, request/response models, and
// error mapping for the job relay endpoints.
package api
