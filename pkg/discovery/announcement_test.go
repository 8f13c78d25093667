// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2020 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"reflect"
	"testing"

	"github.com/schollz/peerdiscovery"

	"github.com/dtn7/rendezvous-go/pkg/rendezvous"
)

func TestAnnouncementCbor(t *testing.T) {
	var tests = [][]Announcement{
		{},
		{
			{Capability: rendezvous.CapabilityCurrent, Endpoint: "http://192.168.1.23:8080/rendezvous"},
		},
		{
			{Capability: rendezvous.CapabilityCurrent, Endpoint: "http://[fe80::1]:8080/rendezvous"},
			{Capability: rendezvous.CapabilityLegacy, Endpoint: "http://[fe80::1]:8080/legacy"},
		},
	}

	for _, dmIn := range tests {
		buff, err := MarshalAnnouncements(dmIn)
		if err != nil {
			t.Fatalf("Encoding failed: %v", err)
		}

		dmsOut, err := UnmarshalAnnouncements(buff)
		if err != nil {
			t.Fatalf("Decoding failed: %v", err)
		}

		if len(dmIn) == 0 && len(dmsOut) == 0 {
			continue
		}
		if !reflect.DeepEqual(dmIn, dmsOut) {
			t.Fatalf("Decoded Announcements differ: %v became %v", dmIn, dmsOut)
		}
	}
}

func TestUnmarshalAnnouncementsGarbage(t *testing.T) {
	if _, err := UnmarshalAnnouncements([]byte("rendezvous?")); err == nil {
		t.Fatal("Garbage was decoded")
	}
}

func TestEndpointFor(t *testing.T) {
	legacyOnly, err := MarshalAnnouncements([]Announcement{
		{Capability: rendezvous.CapabilityLegacy, Endpoint: "http://10.0.0.1/legacy"},
	})
	if err != nil {
		t.Fatal(err)
	}
	both, err := MarshalAnnouncements([]Announcement{
		{Capability: rendezvous.CapabilityLegacy, Endpoint: "http://10.0.0.2/legacy"},
		{Capability: rendezvous.CapabilityCurrent, Endpoint: "http://10.0.0.2/rendezvous"},
	})
	if err != nil {
		t.Fatal(err)
	}
	empty, err := MarshalAnnouncements(nil)
	if err != nil {
		t.Fatal(err)
	}

	discovered := []peerdiscovery.Discovered{
		{Address: "10.0.0.9", Payload: []byte("garbage")},
		{Address: "10.0.0.3", Payload: empty},
		{Address: "10.0.0.1", Payload: legacyOnly},
		{Address: "10.0.0.2", Payload: both},
	}

	if endpoint, ok := endpointFor(discovered, rendezvous.CapabilityCurrent); !ok || endpoint != "http://10.0.0.2/rendezvous" {
		t.Fatalf("current endpoint is %q (%t)", endpoint, ok)
	}
	if endpoint, ok := endpointFor(discovered, rendezvous.CapabilityLegacy); !ok || endpoint != "http://10.0.0.1/legacy" {
		t.Fatalf("legacy endpoint is %q (%t)", endpoint, ok)
	}
	if _, ok := endpointFor(discovered[:2], rendezvous.CapabilityCurrent); ok {
		t.Fatal("endpoint found without announcements")
	}
}
