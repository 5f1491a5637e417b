package webrtc

import (
	"bytes"
	"testing"
)

func TestDepacketize_SingleNAL(t *testing.T) {
	d := NewH264Depacketizer()

	// Type 5 = IDR slice, passed through whole.
	payload := []byte{0x65, 0x01, 0x02, 0x03}
	nalus := d.Depacketize(payload)

	if len(nalus) != 1 {
		t.Fatalf("expected 1 NALU, got %d", len(nalus))
	}
	if !bytes.Equal(nalus[0], payload) {
		t.Errorf("expected payload %v, got %v", payload, nalus[0])
	}
}

func TestDepacketize_STAPA(t *testing.T) {
	d := NewH264Depacketizer()

	sps := []byte{0x67, 0xAA, 0xBB}
	pps := []byte{0x68, 0xCC}

	payload := []byte{0x18}
	payload = append(payload, 0x00, 0x03)
	payload = append(payload, sps...)
	payload = append(payload, 0x00, 0x02)
	payload = append(payload, pps...)

	nalus := d.Depacketize(payload)

	if len(nalus) != 2 {
		t.Fatalf("expected 2 NALUs, got %d", len(nalus))
	}
	if !bytes.Equal(nalus[0], sps) {
		t.Errorf("NALU 0: expected %v, got %v", sps, nalus[0])
	}
	if !bytes.Equal(nalus[1], pps) {
		t.Errorf("NALU 1: expected %v, got %v", pps, nalus[1])
	}
}

func TestDepacketize_STAPA_TruncatedEntryIsDropped(t *testing.T) {
	d := NewH264Depacketizer()

	// Declared size 9 exceeds the remaining bytes.
	payload := []byte{0x18, 0x00, 0x09, 0x65, 0x01}

	if nalus := d.Depacketize(payload); len(nalus) != 0 {
		t.Errorf("expected truncated STAP-A entry to be dropped, got %v", nalus)
	}
}

func TestDepacketize_FUA(t *testing.T) {
	d := NewH264Depacketizer()

	// IDR slice (type 5) with NRI=3, fragmented into three units.
	startPkt := []byte{0x7c, 0x85, 0x01, 0x02}
	midPkt := []byte{0x7c, 0x05, 0x03, 0x04}
	endPkt := []byte{0x7c, 0x45, 0x05, 0x06}

	if nalus := d.Depacketize(startPkt); nalus != nil {
		t.Errorf("start fragment must not emit a NALU, got %v", nalus)
	}
	if nalus := d.Depacketize(midPkt); nalus != nil {
		t.Errorf("middle fragment must not emit a NALU, got %v", nalus)
	}

	nalus := d.Depacketize(endPkt)
	if len(nalus) != 1 {
		t.Fatalf("expected 1 reassembled NALU, got %d", len(nalus))
	}

	// Reconstructed header: F+NRI (0x60) | type 5 = 0x65.
	want := []byte{0x65, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	if !bytes.Equal(nalus[0], want) {
		t.Errorf("expected reassembled NALU %v, got %v", want, nalus[0])
	}
}

func TestDepacketize_EmptyAndUnknown(t *testing.T) {
	d := NewH264Depacketizer()

	if nalus := d.Depacketize(nil); nalus != nil {
		t.Errorf("empty payload must yield nothing, got %v", nalus)
	}
	// Type 30 is outside the supported packetization set.
	if nalus := d.Depacketize([]byte{0x1e, 0x01}); nalus != nil {
		t.Errorf("unknown packetization must be dropped, got %v", nalus)
	}
}
