// Package server exposes the runner and registry over HTTP.
//
// Uploads are saved under the uploads directory and handed to the runner;
// clients follow a task through the /status/{id} event stream, fetch the
// segment list from /results/{id} and download the generated subtitle file
// once from /uploads/{filename}. Model management and Prometheus metrics
// share the same listener.
package server
