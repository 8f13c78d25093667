// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/rendezvous-go/pkg/rendezvous"
)

const (
	versionsPath  = "/_matrix/client/versions"
	unstablePath  = "/_matrix/client/unstable"
	defaultMaxAge = 5 * time.Minute
)

// versionsResponse is the relevant subset of a homeserver's /versions answer.
type versionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features"`
}

// HomeserverProvider asks a Matrix homeserver which rendezvous Capability it supports.
//
// The unstable features are cached for MaxAge; failed lookups are not cached.
type HomeserverProvider struct {
	base   *url.URL
	client *http.Client

	MaxAge time.Duration

	mutex    sync.Mutex
	features map[string]bool
	fetched  time.Time
}

// NewHomeserverProvider for the homeserver's base URL. A nil client results in http.DefaultClient.
func NewHomeserverProvider(homeserver string, client *http.Client) (*HomeserverProvider, error) {
	base, err := url.Parse(homeserver)
	if err != nil {
		return nil, err
	} else if !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("homeserver URL %q is not absolute", homeserver)
	}

	if client == nil {
		client = http.DefaultClient
	}

	return &HomeserverProvider{
		base:   base,
		client: client,
		MaxAge: defaultMaxAge,
	}, nil
}

// CreationEndpoint returns the homeserver's rendezvous endpoint if the Capability is an enabled unstable feature.
func (hp *HomeserverProvider) CreationEndpoint(ctx context.Context, capability rendezvous.Capability) (string, bool, error) {
	features, err := hp.unstableFeatures(ctx)
	if err != nil {
		return "", false, err
	}

	if !features[string(capability)] {
		return "", false, nil
	}

	endpoint := *hp.base
	endpoint.Path = path.Join(endpoint.Path, unstablePath, string(capability), "rendezvous")
	return endpoint.String(), true, nil
}

func (hp *HomeserverProvider) unstableFeatures(ctx context.Context) (map[string]bool, error) {
	hp.mutex.Lock()
	defer hp.mutex.Unlock()

	if hp.features != nil && time.Since(hp.fetched) < hp.MaxAge {
		return hp.features, nil
	}

	versionsUrl := *hp.base
	versionsUrl.Path = path.Join(versionsUrl.Path, versionsPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionsUrl.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := hp.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("homeserver get %s: %s", versionsUrl.String(), resp.Status)
	}

	var versions versionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&versions); err != nil {
		return nil, fmt.Errorf("homeserver get %s: %w", versionsUrl.String(), err)
	}

	features := versions.UnstableFeatures
	if features == nil {
		features = make(map[string]bool)
	}

	log.WithFields(log.Fields{
		"homeserver": hp.base.String(),
		"versions":   versions.Versions,
		"features":   len(features),
	}).Debug("Fetched homeserver's unstable features")

	hp.features = features
	hp.fetched = time.Now()
	return features, nil
}
