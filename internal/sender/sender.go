package sender

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/eventcam/internal/monitoring"
)

// ConnectionError wraps a transport failure that ended a send session.
// The caller decides whether to reconnect.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Config holds pacing and stop-condition settings for one send session.
type Config struct {
	// FPS is the target frame rate. Ignored when NoRateLimit is set.
	FPS float64

	// BatchFrames is the number of frames per pre-built batch. Used to
	// derive the batch send interval and the frame counter.
	BatchFrames int

	// FrameSize in bytes, for frame/byte accounting.
	FrameSize int

	// NoRateLimit sends batches back-to-back; throughput is then
	// bounded purely by transport backpressure.
	NoRateLimit bool

	// Stop conditions. Zero values mean unlimited; whichever is reached
	// first wins. All are evaluated before each send.
	MaxFrames   int64
	MaxBytes    int64
	MaxDuration time.Duration

	// LogEveryFrames controls periodic progress logging. Zero defaults
	// to 500 frames.
	LogEveryFrames int64

	// Clock defaults to the wall clock.
	Clock Clock
}

// Summary reports what one send session accomplished.
type Summary struct {
	FramesSent int64
	BytesSent  int64
	Elapsed    time.Duration
}

// EffectiveFPS returns the achieved frame rate over the session.
func (s Summary) EffectiveFPS() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.FramesSent) / s.Elapsed.Seconds()
}

// Sender cycles through a pool of pre-built batches at a paced rate.
type Sender struct {
	batches [][]byte
	cfg     Config
	clock   Clock
}

// New creates a Sender over a non-empty ordered batch collection. Each
// batch must be an integer number of concatenated frames.
func New(batches [][]byte, cfg Config) (*Sender, error) {
	if len(batches) == 0 {
		return nil, fmt.Errorf("batch collection must not be empty")
	}
	if cfg.BatchFrames <= 0 {
		cfg.BatchFrames = 1
	}
	if cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", cfg.FrameSize)
	}
	for i, b := range batches {
		if len(b) == 0 || len(b)%cfg.FrameSize != 0 {
			return nil, fmt.Errorf("batch %d length %d is not a multiple of frame size %d", i, len(b), cfg.FrameSize)
		}
	}
	if !cfg.NoRateLimit && cfg.FPS <= 0 {
		return nil, fmt.Errorf("target fps must be positive, got %v", cfg.FPS)
	}
	if cfg.LogEveryFrames <= 0 {
		cfg.LogEveryFrames = 500
	}
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock{}
	}
	return &Sender{batches: batches, cfg: cfg, clock: clock}, nil
}

// Run sends batches through t until a stop condition is reached, the
// context is cancelled, or the transport fails. The returned Summary is
// valid in all cases. In-flight batch writes are allowed to finish;
// cancellation is observed between sends and during pacing sleeps.
func (s *Sender) Run(ctx context.Context, t Transport) (Summary, error) {
	var batchInterval time.Duration
	if !s.cfg.NoRateLimit {
		frameInterval := time.Duration(float64(time.Second) / s.cfg.FPS)
		batchInterval = frameInterval * time.Duration(s.cfg.BatchFrames)
	}

	start := s.clock.Now()
	var sum Summary
	var lastLogged int64

	for i := int64(0); ; i++ {
		select {
		case <-ctx.Done():
			sum.Elapsed = s.clock.Now().Sub(start)
			return sum, ctx.Err()
		default:
		}

		if s.cfg.MaxFrames > 0 && sum.FramesSent >= s.cfg.MaxFrames {
			break
		}
		if s.cfg.MaxBytes > 0 && sum.BytesSent >= s.cfg.MaxBytes {
			break
		}
		if s.cfg.MaxDuration > 0 && s.clock.Now().Sub(start) >= s.cfg.MaxDuration {
			break
		}

		if !s.cfg.NoRateLimit {
			// Anchored schedule: batch i goes out at start+i*interval.
			// Sleeping the remaining gap (never a negative duration)
			// keeps drift bounded instead of accumulating per send.
			target := start.Add(time.Duration(i) * batchInterval)
			if wait := target.Sub(s.clock.Now()); wait > 0 {
				select {
				case <-ctx.Done():
					sum.Elapsed = s.clock.Now().Sub(start)
					return sum, ctx.Err()
				case <-s.clock.After(wait):
				}
			}
		}

		batch := s.batches[i%int64(len(s.batches))]
		if err := t.Send(batch); err != nil {
			sum.Elapsed = s.clock.Now().Sub(start)
			return sum, &ConnectionError{Op: "send", Err: err}
		}
		sum.FramesSent += int64(len(batch) / s.cfg.FrameSize)
		sum.BytesSent += int64(len(batch))

		if sum.FramesSent-lastLogged >= s.cfg.LogEveryFrames {
			lastLogged = sum.FramesSent
			elapsed := s.clock.Now().Sub(start)
			if elapsed > 0 {
				monitoring.Logf("Sent %d frames (%.1f fps, %.2f MB/s)",
					sum.FramesSent,
					float64(sum.FramesSent)/elapsed.Seconds(),
					float64(sum.BytesSent)/elapsed.Seconds()/(1024*1024))
			}
		}
	}

	sum.Elapsed = s.clock.Now().Sub(start)
	return sum, nil
}
