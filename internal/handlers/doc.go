// Package handlers implements the HelpMeOut HTTP API.
//
// Every API route lives under /srce/api. Successful responses carry
// "message" and "status_code" fields, errors carry "detail" and
// "status_code". Sessions are opaque tokens sent in a cookie or as a bearer
// token and resolved by SessionMiddleware.
package handlers
