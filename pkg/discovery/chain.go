// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/dtn7/rendezvous-go/pkg/rendezvous"
)

// Chain asks multiple CapabilityProviders in order. The first supported endpoint wins. If none is found, the errors
// of all failing providers are returned together.
type Chain []rendezvous.CapabilityProvider

// CreationEndpoint of the first provider supporting the Capability.
func (chain Chain) CreationEndpoint(ctx context.Context, capability rendezvous.Capability) (string, bool, error) {
	var errs error

	for _, provider := range chain {
		endpoint, ok, err := provider.CreationEndpoint(ctx, capability)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if ok {
			return endpoint, true, nil
		}
	}

	return "", false, errs
}
