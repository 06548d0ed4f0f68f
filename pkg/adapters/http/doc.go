/*
Package http exposes session registries over HTTP.

Sessions are created, fed and polled through JSON endpoints under /sessions.
Lifecycle events stream as server-sent events on /events once the
StreamManager's hooks are installed on the sessions:

	streams := http.NewStreamManager(logger)
	sessions := session.NewManager(source,
		session.WithSessionOptions(callflow.WithSessionHooks(streams.Hooks())),
	)
	handler := http.NewHandler(sessions, source, http.WithStreams(streams))

The API is described by the embedded openapi.yaml, served on /openapi.yaml.
*/
package http
