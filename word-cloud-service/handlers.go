package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-logr/logr"
	"github.com/gorilla/mux"

	"github.com/AnechkaShv/notecloud/internal/imagecache"
	"github.com/AnechkaShv/notecloud/internal/kibela"
)

// webhookResources are the Kibela resource types that carry notes.
var webhookResources = map[string]bool{"blog": true, "wiki": true}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// PathResolver maps a note URL to its id.
type PathResolver interface {
	Resolve(ctx context.Context, path string) (string, error)
	Forget(path string)
}

type WordCloudHandler struct {
	cache    *imagecache.Cache
	generate imagecache.Generator
	resolver PathResolver
	timeout  time.Duration

	// background tracks webhook work still running after its response.
	background sync.WaitGroup
}

func NewWordCloudHandler(cache *imagecache.Cache, generate imagecache.Generator, resolver PathResolver, timeout time.Duration) *WordCloudHandler {
	return &WordCloudHandler{
		cache:    cache,
		generate: generate,
		resolver: resolver,
		timeout:  timeout,
	}
}

func imageKey(r *http.Request) string {
	return strings.TrimSuffix(mux.Vars(r)["key"], ".png")
}

// GetWordCloud serves the word cloud of a note, generating it on a miss. The
// response waits for generation up to the request timeout.
func (h *WordCloudHandler) GetWordCloud(w http.ResponseWriter, r *http.Request) {
	key := imageKey(r)
	if key == "" {
		sendError(w, "Image key is required", http.StatusBadRequest)
		return
	}
	log := logr.FromContextOrDiscard(r.Context()).WithValues("key", key)

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	entry, err := h.cache.Ensure(ctx, key, h.generate)
	if err != nil {
		switch {
		case errors.Is(err, kibela.ErrNotFound):
			sendError(w, fmt.Sprintf("Note %q not found", key), http.StatusNotFound)
		case errors.Is(err, context.DeadlineExceeded):
			sendError(w, "Word cloud generation timed out", http.StatusGatewayTimeout)
		case errors.Is(err, context.Canceled):
			log.V(1).Info("Client went away before the word cloud was ready")
		default:
			log.Error(err, "Failed to generate word cloud")
			sendError(w, "Failed to generate word cloud", http.StatusBadGateway)
		}
		return
	}

	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(entry.Image))
	w.Header().Set("Cache-Control", "public")
	w.Header().Set("ETag", etag)
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(entry.Image)))
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(entry.Image); err != nil {
		log.V(1).Info("Failed to write image", "err", err.Error())
	}
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

// InvalidateWordCloud drops the cached word cloud of a note.
func (h *WordCloudHandler) InvalidateWordCloud(w http.ResponseWriter, r *http.Request) {
	key := imageKey(r)
	if key == "" {
		sendError(w, "Image key is required", http.StatusBadRequest)
		return
	}
	removed := h.cache.Invalidate(key)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"key":     key,
		"removed": removed,
	})
}

// webhookResource identifies the note of an event. ID is the note's API id
// when Kibela includes it; otherwise the id is resolved from URL.
type webhookResource struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type webhookPayload struct {
	Action       string           `json:"action"`
	ResourceType string           `json:"resource_type"`
	Blog         *webhookResource `json:"blog"`
	Wiki         *webhookResource `json:"wiki"`
}

// note returns the note the event is about.
func (p webhookPayload) note() (webhookResource, bool) {
	var res *webhookResource
	switch p.ResourceType {
	case "blog":
		res = p.Blog
	case "wiki":
		res = p.Wiki
	}
	if res == nil || (res.ID == "" && res.URL == "") {
		return webhookResource{}, false
	}
	return *res, true
}

// KibelaWebhook acknowledges a Kibela event at once and then drops or
// regenerates the affected word cloud in the background.
func (h *WordCloudHandler) KibelaWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	log := logr.FromContextOrDiscard(r.Context()).WithValues(
		"action", payload.Action, "resourceType", payload.ResourceType)
	if !webhookResources[payload.ResourceType] {
		log.V(1).Info("Ignoring webhook for unsupported resource")
		return
	}
	note, ok := payload.note()
	if !ok {
		log.Info("Webhook without a note id or URL")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	h.background.Add(1)
	go func() {
		defer h.background.Done()
		h.applyWebhook(ctx, log, payload.Action, note)
	}()
}

// applyWebhook drops or regenerates the word cloud of note. Without an id in
// the payload a delete relies on resolving the URL, which fails for a note
// Kibela has already removed unless the path is still memoized; the image
// then stays cached until the LRU policy evicts it.
func (h *WordCloudHandler) applyWebhook(ctx context.Context, log logr.Logger, action string, note webhookResource) {
	id := note.ID
	if id == "" {
		var err error
		if id, err = h.resolver.Resolve(ctx, note.URL); err != nil {
			log.Error(err, "Failed to resolve note", "url", note.URL)
			return
		}
	}
	log = log.WithValues("note", id)

	if action == "delete" {
		log.Info("Deleting cached word cloud")
		h.cache.Invalidate(id)
		if note.URL != "" {
			h.resolver.Forget(note.URL)
		}
		return
	}
	log.Info("Regenerating word cloud")
	if _, err := h.cache.Refresh(ctx, id, h.generate); err != nil {
		log.Error(err, "Failed to regenerate word cloud")
	}
}

// Wait blocks until background webhook work has finished.
func (h *WordCloudHandler) Wait() {
	h.background.Wait()
}

func (h *WordCloudHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"healthy":  true,
		"cached":   h.cache.Len(),
		"inflight": h.cache.InFlight(),
		"datetime": time.Now().Format(time.RFC3339),
	})
}

func sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
}
