package webrtc

// RFC 6184 packetization types.
const (
	naluTypeSTAPA = 24
	naluTypeFUA   = 28
)

// H264Depacketizer reassembles NAL units from RTP H.264 payloads. FU-A
// fragments accumulate in per-instance state, so each video stream needs its
// own depacketizer.
type H264Depacketizer struct {
	frag []byte
}

// NewH264Depacketizer creates a depacketizer with an empty reassembly buffer.
func NewH264Depacketizer() *H264Depacketizer {
	return &H264Depacketizer{}
}

// Depacketize extracts zero or more complete NAL units from one RTP payload.
// Single NAL, STAP-A and FU-A packetizations are supported; other types are
// dropped.
func (d *H264Depacketizer) Depacketize(payload []byte) [][]byte {
	if len(payload) == 0 {
		return nil
	}

	switch naluType := payload[0] & 0x1f; {
	case naluType >= 1 && naluType <= 23:
		return [][]byte{payload}
	case naluType == naluTypeSTAPA:
		return d.splitSTAPA(payload)
	case naluType == naluTypeFUA:
		return d.reassembleFUA(payload)
	default:
		return nil
	}
}

// splitSTAPA unpacks an aggregation packet: a header byte followed by
// length-prefixed NAL units.
func (d *H264Depacketizer) splitSTAPA(payload []byte) [][]byte {
	var nalus [][]byte
	offset := 1
	for offset+2 <= len(payload) {
		size := int(payload[offset])<<8 | int(payload[offset+1])
		offset += 2
		if offset+size > len(payload) {
			break
		}
		nalus = append(nalus, payload[offset:offset+size])
		offset += size
	}
	return nalus
}

// reassembleFUA accumulates fragmentation units until the end fragment
// arrives, then emits the reconstructed NAL unit.
func (d *H264Depacketizer) reassembleFUA(payload []byte) [][]byte {
	if len(payload) < 2 {
		return nil
	}

	indicator, header := payload[0], payload[1]
	start := header&0x80 != 0
	end := header&0x40 != 0

	if start {
		// NAL header = F+NRI bits from the indicator, type from the header.
		d.frag = append([]byte{indicator&0xe0 | header&0x1f}, payload[2:]...)
	} else {
		d.frag = append(d.frag, payload[2:]...)
	}

	if !end {
		return nil
	}
	nalu := d.frag
	d.frag = nil
	return [][]byte{nalu}
}
