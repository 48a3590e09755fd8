// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It acts as an adapter between the browser UI and
// the job queue: uploads become tasks, and task state, markdown output and
// archives are served back.
package api
