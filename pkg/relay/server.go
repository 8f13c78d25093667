// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const defaultContentType = "text/plain"

// Config of a relay Server.
type Config struct {
	// TTL of a channel, starting with its creation.
	TTL time.Duration

	// MaxPayloadSize limits a channel's payload in bytes.
	MaxPayloadSize int64

	// SweepInterval between two removals of expired channels. Zero disables the sweeping; expired channels are still
	// reported as gone.
	SweepInterval time.Duration

	// PublicURL is the externally visible base URL, e.g., https://relay.example.org, used for the absolute channel URL
	// in create responses. Only its scheme and host are used. If empty, both are taken from the request.
	PublicURL string
}

// DefaultConfig for a relay Server.
func DefaultConfig() Config {
	return Config{
		TTL:            5 * time.Minute,
		MaxPayloadSize: 16 << 10,
		SweepInterval:  30 * time.Second,
	}
}

// createResponse is the JSON body of a successful create request.
type createResponse struct {
	URL     string `json:"url"`
	Expires int64  `json:"expires_ts,omitempty"`
}

// Server is a rendezvous relay, to be bound to a router's path, e.g., /rendezvous.
type Server struct {
	router *mux.Router
	store  Store
	conf   Config
	cron   *Cron
	now    func() time.Time

	publicUrl *url.URL

	// writeMutex serializes the compare-and-swap of conditional writes.
	writeMutex sync.Mutex
}

// NewServer registers the relay's handlers on the router and starts sweeping expired channels.
func NewServer(router *mux.Router, store Store, conf Config) (s *Server, err error) {
	if conf.TTL <= 0 {
		return nil, fmt.Errorf("relay TTL %v is not positive", conf.TTL)
	}
	if conf.MaxPayloadSize <= 0 {
		return nil, fmt.Errorf("relay max payload size %d is not positive", conf.MaxPayloadSize)
	}

	s = &Server{
		router: router,
		store:  store,
		conf:   conf,
		now:    time.Now,
	}

	if conf.PublicURL != "" {
		if s.publicUrl, err = url.Parse(conf.PublicURL); err != nil {
			return nil, fmt.Errorf("relay public URL: %w", err)
		} else if !s.publicUrl.IsAbs() || s.publicUrl.Host == "" {
			return nil, fmt.Errorf("relay public URL %q is not absolute", conf.PublicURL)
		}
	}

	s.router.Use(s.cors)
	s.router.HandleFunc("", s.handleCreate).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/", s.handleCreate).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/{id}", s.handleGet).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/{id}", s.handlePut).Methods(http.MethodPut)
	s.router.HandleFunc("/{id}", s.handleDelete).Methods(http.MethodDelete)

	if conf.SweepInterval > 0 {
		s.cron = NewCron(time.Second, s.now)
		if err = s.cron.Register("sweep_expired", s.sweep, conf.SweepInterval); err != nil {
			s.cron.Stop()
			return nil, err
		}
	}

	log.WithFields(log.Fields{
		"ttl":         conf.TTL,
		"max payload": conf.MaxPayloadSize,
		"sweep":       conf.SweepInterval,
		"public url":  conf.PublicURL,
	}).Info("Started rendezvous relay")

	return s, nil
}

// ServeHTTP is a http.Handler to be bound to a HTTP endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the sweeping. The Store is left open.
func (s *Server) Close() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// sweep removes all channels expired at now from the Store.
func (s *Server) sweep(now time.Time) {
	if n, err := s.store.DeleteExpired(now); err != nil {
		log.WithError(err).Warn("Failed to delete expired channels")
	} else if n > 0 {
		log.WithField("channels", n).Info("Deleted expired channels")
	}
}

// cors allows browser based clients to use the relay.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Content-Type, If-Match, If-None-Match")
		h.Set("Access-Control-Expose-Headers", "ETag, Location, Expires")

		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func newETag() string {
	return fmt.Sprintf("%q", uuid.NewString())
}

// readPayload reads the request's text/plain body, limited to MaxPayloadSize. A missing Content-Type is treated as
// text/plain.
func (s *Server) readPayload(w http.ResponseWriter, r *http.Request) (payload []byte, contentType string, ok bool) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, s.conf.MaxPayloadSize+1))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	} else if int64(len(payload)) > s.conf.MaxPayloadSize {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	contentType = r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	} else if mediaType, _, err := mime.ParseMediaType(contentType); err != nil {
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	} else if mediaType != defaultContentType {
		http.Error(w, fmt.Sprintf("payloads must be %s", defaultContentType), http.StatusUnsupportedMediaType)
		return
	}

	ok = true
	return
}

// lookup fetches a non-expired channel or writes a 404.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (ci ChannelItem, ok bool) {
	id := mux.Vars(r)["id"]
	logger := log.WithField("channel", id)

	ci, err := s.store.Get(id)
	switch {
	case errors.Is(err, ErrNotFound):
		logger.Debug("Request for unknown channel")
		http.NotFound(w, r)
		return

	case err != nil:
		logger.WithError(err).Warn("Failed to fetch channel")
		http.Error(w, "store failure", http.StatusInternalServerError)
		return

	case ci.Expired(s.now()):
		logger.Debug("Request for expired channel")
		if delErr := s.store.Delete(id); delErr != nil && !errors.Is(delErr, ErrNotFound) {
			logger.WithError(delErr).Warn("Failed to delete expired channel")
		}
		http.NotFound(w, r)
		return
	}

	ok = true
	return
}

func (s *Server) writeVersionHeaders(w http.ResponseWriter, ci ChannelItem) {
	h := w.Header()
	h.Set("ETag", ci.ETag)
	h.Set("Expires", ci.Expires.UTC().Format(http.TimeFormat))
	h.Set("Cache-Control", "no-store")
}

// handleCreate processes POST requests, creating a new channel.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	payload, contentType, ok := s.readPayload(w, r)
	if !ok {
		return
	}

	now := s.now()
	ci := ChannelItem{
		Id:          uuid.NewString(),
		Payload:     payload,
		ContentType: contentType,
		ETag:        newETag(),
		Created:     now,
		Updated:     now,
		Expires:     now.Add(s.conf.TTL),
	}

	logger := log.WithField("channel", ci)
	if err := s.store.Insert(ci); err != nil {
		logger.WithError(err).Warn("Failed to store new channel")
		http.Error(w, "store failure", http.StatusInternalServerError)
		return
	}

	location := path.Join(r.URL.Path, ci.Id)

	absolute := url.URL{Scheme: "http", Host: r.Host, Path: location}
	if s.publicUrl != nil {
		absolute.Scheme, absolute.Host = s.publicUrl.Scheme, s.publicUrl.Host
	} else if r.TLS != nil {
		absolute.Scheme = "https"
	}

	s.writeVersionHeaders(w, ci)
	w.Header().Set("Location", location)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)

	resp := createResponse{
		URL:     absolute.String(),
		Expires: ci.Expires.UnixMilli(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.WithError(err).Warn("Failed to write create response")
	}

	logger.Info("Created channel")
}

// handleGet processes GET requests, answering 304 for an unchanged channel.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ci, ok := s.lookup(w, r)
	if !ok {
		return
	}

	s.writeVersionHeaders(w, ci)

	if inm := r.Header.Get("If-None-Match"); inm == "*" || inm == ci.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", ci.ContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(ci.Payload); err != nil {
		log.WithField("channel", ci).WithError(err).Warn("Failed to write channel payload")
	}
}

// handlePut processes PUT requests, replacing a channel's payload if the If-Match precondition holds.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	payload, contentType, ok := s.readPayload(w, r)
	if !ok {
		return
	}

	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	ci, ok := s.lookup(w, r)
	if !ok {
		return
	}

	logger := log.WithFields(log.Fields{
		"channel":  ci,
		"if-match": r.Header.Get("If-Match"),
	})

	if im := r.Header.Get("If-Match"); im != "" && im != "*" && im != ci.ETag {
		logger.Debug("Rejected channel update for an outdated version")
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}

	ci.Payload = payload
	ci.ContentType = contentType
	ci.ETag = newETag()
	ci.Updated = s.now()

	if err := s.store.Update(ci); err != nil {
		logger.WithError(err).Warn("Failed to update channel")
		http.Error(w, "store failure", http.StatusInternalServerError)
		return
	}

	s.writeVersionHeaders(w, ci)
	w.WriteHeader(http.StatusAccepted)

	logger.WithField("etag", ci.ETag).Debug("Updated channel")
}

// handleDelete processes DELETE requests.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	ci, ok := s.lookup(w, r)
	if !ok {
		return
	}

	if err := s.store.Delete(ci.Id); err != nil && !errors.Is(err, ErrNotFound) {
		log.WithField("channel", ci).WithError(err).Warn("Failed to delete channel")
		http.Error(w, "store failure", http.StatusInternalServerError)
		return
	}

	log.WithField("channel", ci).Info("Deleted channel")
	w.WriteHeader(http.StatusNoContent)
}
