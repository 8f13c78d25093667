// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package rendezvous

import "fmt"

// Reason describes why a Channel was cancelled.
type Reason string

const (
	// ReasonUnknown is used if the relay reports the channel as gone without any further information.
	ReasonUnknown Reason = "unknown"

	// ReasonExpired is used if the channel is gone and its relay-declared expiry has already passed.
	ReasonExpired Reason = "expired"

	// ReasonUserDeclined is used if the local user declined the rendezvous. The channel will be deleted on the relay.
	ReasonUserDeclined Reason = "user_declined"

	// ReasonUserCancelled is used if the local user aborted the rendezvous.
	ReasonUserCancelled Reason = "user_cancelled"

	ReasonHomeserverLacksSupport     Reason = "homeserver_lacks_support"
	ReasonInsecureChannelDetected    Reason = "insecure_channel_detected"
	ReasonInvalidCode                Reason = "invalid_code"
	ReasonOtherDeviceNotSignedIn     Reason = "other_device_not_signed_in"
	ReasonOtherDeviceAlreadySignedIn Reason = "other_device_already_signed_in"
	ReasonUnsupportedAlgorithm       Reason = "unsupported_algorithm"
	ReasonUnsupportedProtocol        Reason = "unsupported_protocol"

	// ReasonETagMissing is used by protocols on top of a Channel if the relay does not supply version tags.
	ReasonETagMissing Reason = "etag_missing"
)

var knownReasons = []Reason{
	ReasonUnknown,
	ReasonExpired,
	ReasonUserDeclined,
	ReasonUserCancelled,
	ReasonHomeserverLacksSupport,
	ReasonInsecureChannelDetected,
	ReasonInvalidCode,
	ReasonOtherDeviceNotSignedIn,
	ReasonOtherDeviceAlreadySignedIn,
	ReasonUnsupportedAlgorithm,
	ReasonUnsupportedProtocol,
	ReasonETagMissing,
}

// ParseReason returns the Reason for its string representation or an error for unknown values.
func ParseReason(s string) (Reason, error) {
	for _, reason := range knownReasons {
		if string(reason) == s {
			return reason, nil
		}
	}
	return "", fmt.Errorf("unknown rendezvous failure reason %q", s)
}

func (reason Reason) String() string {
	return string(reason)
}

// FailureListener is informed once about the Reason of a Channel's cancellation.
type FailureListener func(reason Reason)
