package main

import (
	"io"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	rip_stream "github.com/alanbriolat/rip-stream"
	"github.com/alanbriolat/rip-stream/generic"
	"github.com/alanbriolat/rip-stream/internal/pubsub"
)

// progressObserver draws a progress bar from runner events and logs the milestones.
type progressObserver struct {
	session rip_stream.Config
	logger  *zap.SugaredLogger
	out     io.Writer
	bar     *progressbar.ProgressBar
	bytes   atomic.Int64
}

func newProgressObserver(session rip_stream.Config, logger *zap.SugaredLogger, out io.Writer) *progressObserver {
	return &progressObserver{session: session, logger: logger.Named("progress"), out: out}
}

func (o *progressObserver) newBar(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(o.out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
}

func (o *progressObserver) finishBar() {
	if o.bar != nil {
		_ = o.bar.Finish()
		o.bar = nil
	}
}

// AddBytes counts bytes as they are downloaded; it is called from fetch goroutines.
func (o *progressObserver) AddBytes(n int64) {
	o.bytes.Add(n)
}

func (o *progressObserver) expected() int64 {
	if o.session.LastIndex == rip_stream.NoLastIndex {
		return -1
	}
	return int64(o.session.LastIndex - o.session.FirstIndex + 1)
}

func (o *progressObserver) Watch(sub *pubsub.Subscription[rip_stream.Event]) {
	for event := range sub.Receive() {
		o.handle(event)
	}
	o.finishBar()
}

func (o *progressObserver) handle(event rip_stream.Event) {
	switch e := event.(type) {
	case rip_stream.AcquisitionStarted:
		if e.Resumed > 0 {
			o.logger.Infof("Resuming with %d existing segments", e.Resumed)
		}
		o.logger.Infof("Downloading segments of '%s'", o.session.OutputName)
		o.bar = o.newBar(o.expected(), "segments")
		if e.Resumed > 0 {
			generic.Unwrap_(o.bar.Set(e.Resumed))
		}
	case rip_stream.SegmentAcquired:
		if o.bar != nil {
			o.bar.Describe("segments (" + humanize.Bytes(uint64(o.bytes.Load())) + ")")
			generic.Unwrap_(o.bar.Set(e.Count))
		}
	case rip_stream.AcquisitionFinished:
		o.finishBar()
		o.logger.Infow("Download finished", "segments", e.Count, "downloaded", humanize.Bytes(uint64(o.bytes.Load())), "reason", e.Reason.String())
	case rip_stream.AssemblyStarted:
		o.logger.Infof("Joining %d segments...", e.Segments)
		o.bar = o.newBar(int64(e.Segments), "joining")
	case rip_stream.AssemblyProgress:
		if o.bar != nil {
			generic.Unwrap_(o.bar.Set(e.Done))
			if e.Done == e.Total {
				o.finishBar()
				o.logger.Info("Transcoding...")
			}
		}
	case rip_stream.SessionFinished:
		o.finishBar()
		if e.Success && e.Incomplete {
			o.logger.Warnf("'%s' is incomplete: some segments could not be downloaded", e.Name)
		}
	}
}
