/*
Package httpfront is the HTTP front-end: it terminates HTTP, matches
requests against the route table using gorilla/mux, turns a matched
request into a Task, and drives the scheduler and pool to get a result.

One mux handler is registered per (method, path-template) route table
entry, plus GET /health and GET /capacity. Status mapping follows a fixed
table: 200 success, 404 unknown path, 405 method not allowed, 500 handler
failure, 503 no capacity (with Retry-After), 504 deadline exceeded, 502
worker died mid-task.
*/
package httpfront
