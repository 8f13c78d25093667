// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"context"

	"github.com/dtn7/rendezvous-go/pkg/rendezvous"
)

// StaticProvider maps each supported Capability to its creation endpoint.
type StaticProvider map[rendezvous.Capability]string

// CreationEndpoint looks up the Capability.
func (sp StaticProvider) CreationEndpoint(_ context.Context, capability rendezvous.Capability) (string, bool, error) {
	endpoint, ok := sp[capability]
	return endpoint, ok && endpoint != "", nil
}
