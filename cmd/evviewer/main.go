// Command evviewer receives an event-camera stream, maintains the
// visualization state (time surfaces, heatmap) and rolling statistics,
// and exposes both through an HTTP monitor endpoint. Rendered frames
// are served as PNG rather than drawn to a local window, so the viewer
// runs fine on headless capture boxes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/eventcam/internal/evcodec"
	"github.com/banshee-data/eventcam/internal/monitor"
	"github.com/banshee-data/eventcam/internal/monitoring"
	"github.com/banshee-data/eventcam/internal/receiver"
	"github.com/banshee-data/eventcam/internal/stats"
	"github.com/banshee-data/eventcam/internal/statsdb"
	"github.com/banshee-data/eventcam/internal/version"
	"github.com/banshee-data/eventcam/internal/viz"
)

var (
	width  = flag.Int("width", 1280, "Sensor width in pixels")
	height = flag.Int("height", 720, "Sensor height in pixels")

	listenAddr   = flag.String("listen", ":9000", "Accept camera connections on this address")
	connectAddr  = flag.String("connect", "", "Dial the camera at this address instead of listening")
	useUDP       = flag.Bool("udp", false, "Receive over UDP instead of TCP")
	datagramSize = flag.Int("datagram", 8192, "Expected UDP datagram payload size")
	lengthPrefix = flag.Bool("length-prefix", false, "Expect a 4-byte length field before each frame (TCP only)")
	rcvBuf       = flag.Int("rcvbuf", 4*1024*1024, "Socket receive buffer size in bytes")
	reconnect    = flag.Duration("reconnect", 2*time.Second, "Delay between dial attempts in -connect mode")

	modeFlag  = flag.String("mode", "1", "Render mode: 1=standard 2=time-surface 3=heatmap 4=split")
	renderFPS = flag.Float64("render-fps", 30, "Maximum render rate for the published frame")

	monitorAddr = flag.String("monitor", "127.0.0.1:8080", "Monitor HTTP address (empty disables)")
	dbPath      = flag.String("db", "", "Record session stats to this SQLite database (empty disables)")
	dbInterval  = flag.Duration("db-interval", 5*time.Second, "Stats sampling period for the database")

	statsInterval = flag.Duration("stats-interval", 10*time.Second, "Period for stats log lines")
	screenshot    = flag.String("screenshot", "", "Write the final rendered frame to this PNG on exit")

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
		log.Fatalf("evviewer: %v", err)
	}
}

func run(ctx context.Context) error {
	geom := evcodec.Geometry{Width: *width, Height: *height}
	if err := geom.Validate(); err != nil {
		return err
	}
	mode, err := viz.ParseMode(*modeFlag)
	if err != nil {
		return err
	}

	agg := stats.New()
	engineCfg := viz.DefaultConfig()
	engineCfg.Geometry = geom
	engineCfg.Stats = agg
	engine, err := viz.NewEngine(engineCfg)
	if err != nil {
		return err
	}
	engine.SetMode(mode)

	frames := &monitor.FrameBuffer{}

	var db *statsdb.DB
	var sessionID string
	if *dbPath != "" {
		db, err = statsdb.Open(*dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		sessionID, err = db.BeginSession(sourceName(), transportName(), geom)
		if err != nil {
			return err
		}
		monitoring.Logf("Recording session %s to %s", sessionID, *dbPath)
		go db.RecordLoop(ctx, sessionID, agg, *dbInterval)
		defer func() {
			if err := db.EndSession(sessionID, agg.Snapshot()); err != nil {
				monitoring.Logf("Failed to close session record: %v", err)
			}
		}()
	}

	// Render throttle: publish at most renderFPS frames regardless of
	// the incoming frame rate.
	renderInterval := time.Duration(float64(time.Second) / *renderFPS)
	var lastRender time.Time
	onFrame := func(seq uint64, events int) {
		if time.Since(lastRender) < renderInterval {
			return
		}
		lastRender = time.Now()
		frames.Publish(engine.Render())
	}

	session, err := receiver.NewSession(receiver.Config{
		Engine:         engine,
		Stats:          agg,
		LengthPrefixed: *lengthPrefix,
		SockBuf:        *rcvBuf,
		DatagramSize:   *datagramSize,
		LogInterval:    *statsInterval,
		OnFrame:        onFrame,
	})
	if err != nil {
		return err
	}

	if *monitorAddr != "" {
		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address:   *monitorAddr,
			Stats:     agg,
			Frames:    frames,
			DB:        db,
			SessionID: sessionID,
			OnReset:   session.RequestReset,
		})
		go ws.Start(ctx)
	}

	start := time.Now()
	runErr := runSessions(ctx, session)
	logSummary(agg, engine, time.Since(start))

	if *screenshot != "" {
		if err := saveScreenshot(frames, *screenshot); err != nil {
			monitoring.Logf("Failed to save screenshot: %v", err)
		}
	}
	return runErr
}

// runSessions drives connections until ctx is cancelled. Listen mode
// accepts camera connections one at a time; connect mode redials with a
// fixed delay. Visualization state carries across reconnects.
func runSessions(ctx context.Context, session *receiver.Session) error {
	if *useUDP {
		udpAddr, err := net.ResolveUDPAddr("udp", *listenAddr)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", *listenAddr, err)
		}
		conn, err := net.ListenUDP("udp", udpAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", *listenAddr, err)
		}
		monitoring.Logf("Receiving UDP on %s", conn.LocalAddr())
		return session.RunUDP(ctx, conn)
	}

	if *connectAddr != "" {
		for {
			conn, err := net.Dial("tcp", *connectAddr)
			if err != nil {
				monitoring.Logf("Dial %s failed: %v (retrying in %s)", *connectAddr, err, *reconnect)
			} else {
				monitoring.Logf("Connected to %s", conn.RemoteAddr())
				if err := session.RunTCP(ctx, conn); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					monitoring.Logf("Session ended: %v (reconnecting in %s)", err, *reconnect)
				} else {
					monitoring.Logf("Stream closed by camera (reconnecting in %s)", *reconnect)
				}
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(*reconnect):
			}
		}
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", *listenAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", *listenAddr, err)
	}
	lis, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", *listenAddr, err)
	}
	defer lis.Close()
	monitoring.Logf("Listening for cameras on %s", lis.Addr())

	for {
		conn, err := receiver.AcceptOne(ctx, lis, time.Second)
		if err != nil {
			return err
		}
		monitoring.Logf("Camera connected from %s", conn.RemoteAddr())
		if err := session.RunTCP(ctx, conn); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			monitoring.Logf("Session ended: %v", err)
		} else {
			monitoring.Logf("Stream closed by camera")
		}
	}
}

func logSummary(agg *stats.Aggregator, engine *viz.Engine, elapsed time.Duration) {
	s := agg.Snapshot()
	monitoring.Logf("Session summary: %s frames, %s events in %s",
		stats.FormatCount(s.TotalFrames),
		stats.FormatCount(s.TotalEvents),
		elapsed.Round(time.Second))
	if reserved := engine.ReservedSeen(); reserved > 0 {
		monitoring.Logf("Data quality: %d reserved pixel values observed", reserved)
	}
}

func saveScreenshot(frames *monitor.FrameBuffer, path string) error {
	img, ok := frames.Latest()
	if !ok {
		return fmt.Errorf("no frame was rendered")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return err
	}
	monitoring.Logf("Saved screenshot to %s", path)
	return nil
}

func sourceName() string {
	if *connectAddr != "" {
		return *connectAddr
	}
	return *listenAddr
}

func transportName() string {
	if *useUDP {
		return "udp"
	}
	return "tcp"
}
