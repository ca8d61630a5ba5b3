package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bz888/modeler/internal/api/client"
	"github.com/bz888/modeler/internal/logger"
)

type Handler struct {
	upstream    Upstream
	precontexts map[string]string
	apiKey      string
	log         *logger.Logger
}

func NewHandler(upstream Upstream, precontexts map[string]string, apiKey string) *Handler {
	return &Handler{
		upstream:    upstream,
		precontexts: precontexts,
		apiKey:      apiKey,
		log:         logger.NewLogger("server"),
	}
}

// Authorize accepts X-API-Key or a bearer token. With no key configured every
// request is let through.
func (h *Handler) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) != 1 {
			h.log.Warn().Str("path", r.URL.Path).Msg("rejected request without a valid api key")
			http.Error(w, "invalid api key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	status := struct {
		PortWorking   bool `json:"port_working"`
		ServerWorking bool `json:"server_working"`
	}{
		PortWorking:   true,
		ServerWorking: true,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

// ChatHandler forwards a chat request upstream and relays the NDJSON answer
// line by line. withPrecontext selects the precontext route, which prepends
// the named system prompt.
func (h *Handler) ChatHandler(withPrecontext bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		var clientReq client.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&clientReq); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if clientReq.Model == "" || len(clientReq.Messages) == 0 {
			http.Error(w, "model and messages are required", http.StatusBadRequest)
			return
		}

		apiReq := UpstreamChatRequest{Model: clientReq.Model, Stream: true}
		if withPrecontext {
			prompt, ok := h.precontexts[clientReq.Precontext]
			if !ok {
				h.log.Error().Str("precontext", clientReq.Precontext).Msg("precontext not found")
				http.Error(w, "unknown precontext: "+clientReq.Precontext, http.StatusBadRequest)
				return
			}
			if prompt != "" {
				apiReq.Messages = append(apiReq.Messages, client.Message{Role: "system", Content: prompt})
			}
		}
		apiReq.Messages = append(apiReq.Messages, clientReq.Messages...)

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		lines := 0
		err := h.upstream.Chat(r.Context(), &apiReq, func(bts []byte) error {
			if lines == 0 {
				w.Header().Set("Content-Type", "application/x-ndjson")
				w.WriteHeader(http.StatusOK)
			}
			lines++
			if _, err := w.Write(bts); err != nil {
				return err
			}
			if _, err := w.Write([]byte{'\n'}); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		})

		if err == nil {
			h.log.Info().Str("model", apiReq.Model).Str("precontext", clientReq.Precontext).Int("lines", lines).Msg("chat relayed")
			return
		}
		h.log.Error().Err(err).Str("model", apiReq.Model).Int("lines", lines).Msg("chat relay failed")
		if r.Context().Err() != nil {
			return
		}
		if lines > 0 {
			// Headers are gone; report in-band like the upstream does.
			payload, _ := json.Marshal(map[string]string{"error": err.Error()})
			_, _ = w.Write(append(payload, '\n'))
			return
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			http.Error(w, statusErr.Body, statusErr.Code)
			return
		}
		http.Error(w, "Failed to process request: "+err.Error(), http.StatusBadGateway)
	}
}

func (h *Handler) ModelHandler(w http.ResponseWriter, r *http.Request) {
	body, err := h.upstream.Models(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to fetch models")
		http.Error(w, "Failed to fetch data: "+err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
