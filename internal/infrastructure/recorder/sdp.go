package recorder

import (
	"fmt"
	"strconv"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"

	"github.com/pion/sdp/v3"
)

// SynthesizeSDP builds the session description the muxing subprocess
// reads its capture inputs from. One media section per input, all on
// loopback, payload types matching what the capture transports will
// forward.
func SynthesizeSDP(inputs []ports.CaptureInput) (string, error) {
	if len(inputs) == 0 {
		return "", fmt.Errorf("no capture inputs")
	}

	desc := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      uint64(time.Now().Unix()),
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "127.0.0.1",
		},
		SessionName: "roomrelay capture",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "127.0.0.1"},
		},
		TimeDescriptions: []sdp.TimeDescription{{}},
	}

	for _, in := range inputs {
		pt := strconv.Itoa(int(in.PayloadType))
		rtpmap := fmt.Sprintf("%s %s/%d", pt, in.CodecName, in.ClockRate)
		if in.Kind == domain.MediaKindAudio && in.Channels > 0 {
			rtpmap = fmt.Sprintf("%s/%d", rtpmap, in.Channels)
		}

		desc.MediaDescriptions = append(desc.MediaDescriptions, &sdp.MediaDescription{
			MediaName: sdp.MediaName{
				Media:   string(in.Kind),
				Port:    sdp.RangedPort{Value: in.Port},
				Protos:  []string{"RTP", "AVP"},
				Formats: []string{pt},
			},
			Attributes: []sdp.Attribute{
				sdp.NewAttribute("rtpmap", rtpmap),
				sdp.NewPropertyAttribute("recvonly"),
			},
		})
	}

	b, err := desc.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal session description: %w", err)
	}
	return string(b), nil
}
