// Command fakecam streams synthetic (or pcap-replayed) event-camera
// frames to a viewer over TCP or UDP at a paced frame rate.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/eventcam/internal/evcodec"
	"github.com/banshee-data/eventcam/internal/monitoring"
	"github.com/banshee-data/eventcam/internal/receiver"
	"github.com/banshee-data/eventcam/internal/scene"
	"github.com/banshee-data/eventcam/internal/sender"
	"github.com/banshee-data/eventcam/internal/version"
)

var (
	width  = flag.Int("width", 1280, "Sensor width in pixels")
	height = flag.Int("height", 720, "Sensor height in pixels")

	addr         = flag.String("addr", "127.0.0.1:9000", "Destination address (or listen address with -serve)")
	serve        = flag.Bool("serve", false, "Listen and stream to the first client instead of dialing out")
	useUDP       = flag.Bool("udp", false, "Send over UDP instead of TCP")
	datagramSize = flag.Int("datagram", 8192, "UDP datagram payload size")
	lengthPrefix = flag.Bool("length-prefix", false, "Prefix every frame with a 4-byte length field (TCP only)")
	sndBuf       = flag.Int("sndbuf", 4*1024*1024, "Socket send buffer size in bytes")

	fps         = flag.Float64("fps", 30, "Target frame rate")
	batchFrames = flag.Int("batch", 1, "Frames per send batch")
	noRateLimit = flag.Bool("no-rate-limit", false, "Send as fast as the transport accepts")

	poolFrames  = flag.Int("pool", 600, "Pre-generated scene frames (one full animation cycle)")
	noiseEvents = flag.Int("noise", 0, "Random noise events per frame")
	seed        = flag.Int64("seed", 0, "Noise placement seed (0 = fixed default)")

	pcapFile = flag.String("pcap", "", "Replay UDP payloads from this pcap file instead of the synthetic scene")
	pcapPort = flag.Int("pcap-port", 9000, "UDP destination port to extract from the pcap")

	maxFrames   = flag.Int64("max-frames", 0, "Stop after this many frames (0 = unlimited)")
	maxBytes    = flag.Int64("max-bytes", 0, "Stop after this many bytes (0 = unlimited)")
	maxDuration = flag.Duration("max-duration", 0, "Stop after this long (0 = unlimited)")

	verbose     = flag.Bool("verbose", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.Verbose = *verbose

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("fakecam: %v", err)
	}
}

func run(ctx context.Context) error {
	geom := evcodec.Geometry{Width: *width, Height: *height}
	if err := geom.Validate(); err != nil {
		return err
	}
	frameSize := geom.FrameSize()

	batches, err := buildBatches(geom)
	if err != nil {
		return err
	}
	monitoring.Logf("Prepared %d batches of %d frames (%dx%d, %d bytes/frame)",
		len(batches), *batchFrames, geom.Width, geom.Height, frameSize)

	transport, err := openTransport(ctx, frameSize)
	if err != nil {
		return err
	}
	defer transport.Close()

	s, err := sender.New(batches, sender.Config{
		FPS:         *fps,
		BatchFrames: *batchFrames,
		FrameSize:   frameSize,
		NoRateLimit: *noRateLimit,
		MaxFrames:   *maxFrames,
		MaxBytes:    *maxBytes,
		MaxDuration: *maxDuration,
	})
	if err != nil {
		return err
	}

	sum, err := s.Run(ctx, transport)
	monitoring.Logf("Session finished: %d frames, %.2f MB in %s (%.1f fps effective)",
		sum.FramesSent,
		float64(sum.BytesSent)/(1024*1024),
		sum.Elapsed.Round(time.Millisecond),
		sum.EffectiveFPS())
	return err
}

// buildBatches assembles the batch pool from the pcap capture or the
// synthetic scene.
func buildBatches(geom evcodec.Geometry) ([][]byte, error) {
	if *pcapFile != "" {
		return sender.LoadPCAPBatches(*pcapFile, *pcapPort, geom.FrameSize(), *batchFrames)
	}

	cfg := scene.DefaultConfig()
	cfg.Geometry = geom
	cfg.NoiseEvents = *noiseEvents
	cfg.Seed = *seed
	pool, err := scene.Generate(cfg, *poolFrames)
	if err != nil {
		return nil, err
	}
	return pool.Batches(*batchFrames)
}

func openTransport(ctx context.Context, frameSize int) (sender.Transport, error) {
	if *useUDP {
		if *lengthPrefix {
			return nil, fmt.Errorf("-length-prefix is TCP only")
		}
		return sender.NewUDPTransport(*addr, frameSize, *datagramSize, *sndBuf)
	}

	var conn net.Conn
	var err error
	if *serve {
		conn, err = waitForClient(ctx)
	} else {
		conn, err = sender.DialTCP(ctx, *addr, *sndBuf)
	}
	if err != nil {
		return nil, err
	}
	return sender.NewTCPTransport(conn, frameSize, *lengthPrefix)
}

// waitForClient listens on addr and streams to the first viewer that
// connects, matching camera hardware that acts as the server side.
func waitForClient(ctx context.Context) (net.Conn, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", *addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", *addr, err)
	}
	lis, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", *addr, err)
	}
	defer lis.Close()

	monitoring.Logf("Waiting for a viewer on %s...", lis.Addr())
	conn, err := receiver.AcceptOne(ctx, lis, time.Second)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("Viewer connected from %s", conn.RemoteAddr())
	return conn, nil
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fakecam [flags]\n\nStreams event-camera frames to a viewer.\n\n")
		flag.PrintDefaults()
	}
}
