package nav

import (
	"errors"
	"io"
	"log"

	"insgps-go/calib"
	"insgps-go/ins"
	"insgps-go/pages"
)

// RunConfig is the scoped run context: the reimplementation of what the
// original holds in process-wide singletons.
type RunConfig struct {
	Opts  *Options
	Calib calib.Standard
	In    io.Reader
	Out   io.Writer
	// LeverArm, when set, is the IMU to antenna offset attached to every
	// GPS packet.
	LeverArm *ins.Vector3
}

// Run drives one complete log stream through the pipeline. Offline and
// back-propagation modes buffer and sort; realtime applies packets as
// they arrive.
func Run(cfg RunConfig) error {
	if err := cfg.Opts.Validate(); err != nil {
		return err
	}

	reader := pages.NewReader(cfg.In)
	reader.Calib = cfg.Calib
	reader.LeverArm = cfg.LeverArm

	emitter := NewEmitter(cfg.Opts, cfg.Out)
	pipe := NewPipeline(cfg.Opts, cfg.Calib, emitter)
	emitter.Label(cfg.Opts.EstBias)

	var fixer PPSFixer
	apply := pipe.Apply
	var buffer *SortBuffer
	if cfg.Opts.Sync != SyncRealTime {
		buffer = NewSortBuffer(cfg.Opts.SortDepth, pipe.Apply)
		apply = buffer.Push
	}

	for {
		pkt, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if cfg.Opts.Reduce1PPS {
			pkt = fixer.Fix(pkt)
		}
		if err := apply(pkt); err != nil {
			return err
		}
		if pipe.Done() {
			break
		}
	}
	if buffer != nil {
		if err := buffer.Flush(); err != nil {
			return err
		}
	}

	if cfg.Opts.Verbose {
		log.Printf("dropped: %d gps, %d mag", pipe.DroppedG, pipe.DroppedM)
	}
	return nil
}
