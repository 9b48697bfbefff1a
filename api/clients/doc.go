// Package clients provides an HTTP client for the coordinator API served by
// package httpserver. Non-2xx answers are returned as *APIError carrying the
// decoded api.ErrorResponse.
package clients
