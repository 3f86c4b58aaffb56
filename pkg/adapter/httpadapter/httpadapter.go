// Package httpadapter connects net/http (and chi) to a cronjob.Engine.
//
// Adapters only translate requests and responses; authentication, lookup
// and execution stay in the engine.
package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cronhook/pkg/cronjob"
)

// MaxBodyBytes bounds how much of a trigger body is read.
const MaxBodyBytes = 1 << 20

const jobParam = "job"

// ToRequest converts an inbound HTTP request into an engine request.
func ToRequest(r *http.Request, jobName string) (cronjob.Request, error) {
	if r.Method != http.MethodPost {
		return cronjob.Request{}, cronjob.NewError(cronjob.KindMethodNotAllowed, "Method %s not allowed", r.Method)
	}
	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
		if err != nil {
			return cronjob.Request{}, fmt.Errorf("read body: %w", err)
		}
		body = b
	}
	return cronjob.Request{
		JobName: jobName,
		Headers: r.Header.Clone(),
		Body:    body,
		Metadata: map[string]any{
			"remote_addr": r.RemoteAddr,
			"path":        r.URL.Path,
		},
	}, nil
}

// WriteResponse writes resp as JSON. A body that cannot be encoded is
// replaced by a 500 error body.
func WriteResponse(w http.ResponseWriter, resp cronjob.Response) {
	raw, err := json.Marshal(resp.Body)
	if err != nil {
		resp = cronjob.Response{
			Status: http.StatusInternalServerError,
			Body:   cronjob.ResponseBody{Success: false, Error: "encode result: " + err.Error()},
		}
		raw, _ = json.Marshal(resp.Body)
	}
	for k, vs := range resp.Headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if resp.Status == http.StatusMethodNotAllowed && w.Header().Get("Allow") == "" {
		w.Header().Set("Allow", http.MethodPost)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(append(raw, '\n'))
}

func serve(eng *cronjob.Engine, w http.ResponseWriter, r *http.Request, job string) {
	req, err := ToRequest(r, job)
	if err != nil {
		WriteResponse(w, cronjob.ErrorResponse(err))
		return
	}
	WriteResponse(w, eng.HandleRequest(r.Context(), req))
}

// JobHandler serves a single, fixed job.
func JobHandler(eng *cronjob.Engine, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serve(eng, w, r, name)
	})
}

// Handler serves every job under prefix, taking the job name from the path
// segment after it (e.g. /api/cron/report).
func Handler(eng *cronjob.Engine, prefix string) http.Handler {
	prefix = strings.TrimRight(prefix, "/") + "/"
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, ok := strings.CutPrefix(r.URL.Path, prefix)
		if !ok || name == "" || strings.Contains(name, "/") {
			http.NotFound(w, r)
			return
		}
		serve(eng, w, r, name)
	})
}

// Mount registers the trigger route on a chi router. Non-POST methods answer
// 405 with the engine's JSON error shape.
func Mount(r chi.Router, eng *cronjob.Engine, prefix string) {
	base := strings.Trim(strings.TrimSpace(prefix), "/")
	if base != "" {
		base = "/" + base
	}
	pattern := base + "/{" + jobParam + "}"
	r.HandleFunc(pattern, func(w http.ResponseWriter, req *http.Request) {
		serve(eng, w, req, chi.URLParam(req, jobParam))
	})
}
