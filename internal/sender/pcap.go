package sender

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/eventcam/internal/demux"
	"github.com/banshee-data/eventcam/internal/monitoring"
)

// LoadPCAPBatches builds a batch pool from UDP payloads captured in a
// pcap file. Payloads destined for udpPort are concatenated in capture
// order and re-sliced into frames, so the capture's own datagram
// boundaries do not matter. The file reader is pure Go (pcapgo); no
// libpcap needed for offline replay.
//
// A trailing partial frame in the capture is logged and discarded.
func LoadPCAPBatches(path string, udpPort, frameSize, batchFrames int) ([][]byte, error) {
	if batchFrames <= 0 {
		batchFrames = 1
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file: %w", err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap header of %s: %w", path, err)
	}

	d, err := demux.New(frameSize)
	if err != nil {
		return nil, err
	}

	var frames [][]byte
	packetCount := 0
	for {
		data, _, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read pcap packet %d: %w", packetCount+1, err)
		}
		packetCount++

		packet := gopacket.NewPacket(data, r.LinkType(), gopacket.Default)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || int(udp.DstPort) != udpPort || len(udp.Payload) == 0 {
			continue
		}

		extracted, err := d.Feed(udp.Payload)
		if err != nil {
			return nil, err
		}
		for _, fr := range extracted {
			frames = append(frames, fr.Data)
		}
	}

	if rem := d.Buffered(); rem > 0 {
		monitoring.Logf("pcap capture ends mid-frame: discarding %d trailing bytes", rem)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no complete frames for UDP port %d in %s (%d packets scanned)", udpPort, path, packetCount)
	}
	monitoring.Logf("Loaded %d frames from %s (%d packets)", len(frames), path, packetCount)

	// Group into full batches, wrapping cyclically like the scene pool.
	numBatches := (len(frames) + batchFrames - 1) / batchFrames
	batches := make([][]byte, numBatches)
	idx := 0
	for b := range batches {
		batch := make([]byte, 0, batchFrames*frameSize)
		for i := 0; i < batchFrames; i++ {
			batch = append(batch, frames[idx%len(frames)]...)
			idx++
		}
		batches[b] = batch
	}
	return batches, nil
}
