package rip_stream

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/r3labs/diff/v3"
	"go.uber.org/zap"

	"github.com/alanbriolat/rip-stream/generic"
	"github.com/alanbriolat/rip-stream/internal/pubsub"
)

// Result describes a finished session.
type Result struct {
	SessionID   string
	Acquisition *Acquisition
	Artifact    *Artifact
	// Skipped is true if the artifact already existed and nothing was done.
	Skipped bool
}

// Runner executes one session: acquire segments, assemble them, and report the outcome as events.
type Runner struct {
	config     Config
	fetcher    Fetcher
	transcoder Transcoder
	store      Store
	events     *pubsub.Publisher[Event]
}

func NewRunner(config Config, fetcher Fetcher, transcoder Transcoder, store Store) *Runner {
	if store == nil {
		store = NilStore{}
	}
	return &Runner{
		config:     config,
		fetcher:    fetcher,
		transcoder: transcoder,
		store:      store,
		events:     pubsub.NewPublisher[Event](),
	}
}

// Subscribe returns a subscription to the runner's events. Subscribe before Run to see every event.
func (r *Runner) Subscribe() (*pubsub.Subscription[Event], error) {
	return r.events.Subscribe()
}

// Close ends all subscriptions.
func (r *Runner) Close() {
	r.events.Close()
}

func (r *Runner) newID() string {
	return generic.Unwrap(uuid.NewRandom()).String()
}

// resumeParams are the settings that must match for segments from an earlier run to be reused.
type resumeParams struct {
	URLTemplate string
	FirstIndex  int
}

// Run executes the session. Configuration, empty-input and transcode errors are returned; a transient fetch failure
// only ends acquisition early and is reported in Result.Acquisition.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	cfg := r.config
	result := &Result{SessionID: r.newID()}
	if err := cfg.Validate(); err != nil {
		r.publishFinished(result, cfg, err)
		return result, err
	}
	template := MustParseTemplate(cfg.URLTemplate)
	log := Logger(ctx).Sugar().Named("runner").With("session_id", result.SessionID, "output_name", cfg.OutputName)
	ctx = WithLogger(ctx, log.Desugar())

	assembler := &Assembler{
		Transcoder:       r.transcoder,
		OutputDir:        cfg.WorkDir(),
		Container:        cfg.Container,
		KeepIntermediate: cfg.KeepIntermediate,
		OnConcat: func(done int, total int) {
			r.events.Send(AssemblyProgress{sessionEvent{result.SessionID}, done, total})
		},
	}
	artifactPath := assembler.ArtifactPath(cfg.OutputName)
	if _, err := os.Stat(artifactPath); err == nil {
		log.Infof("'%s' already exists. Skipping.", artifactPath)
		result.Skipped = true
		result.Artifact = &Artifact{Path: artifactPath}
		r.publishFinished(result, cfg, nil)
		return result, nil
	}

	session := &Session{
		ID:          result.SessionID,
		Template:    template,
		FirstIndex:  cfg.FirstIndex,
		LastIndex:   cfg.LastIndex,
		OutputName:  cfg.OutputName,
		SegmentsDir: cfg.SegmentsDir(),
		Extension:   segmentExtension(template, cfg.FirstIndex),
	}
	if err := r.prepareResume(session, cfg, log); err != nil {
		r.publishFinished(result, cfg, err)
		return result, err
	}

	record := &SessionRecord{
		ID:          session.ID,
		URLTemplate: cfg.URLTemplate,
		FirstIndex:  cfg.FirstIndex,
		LastIndex:   cfg.LastIndex,
		OutputName:  cfg.OutputName,
		Segments:    len(session.Segments),
		Status:      SessionStatusAcquiring,
		StartedAt:   time.Now(),
	}
	var warnings *multierror.Error
	if err := r.store.PutSession(record); err != nil {
		warnings = multierror.Append(warnings, fmt.Errorf("failed to record session: %w", err))
	}

	r.events.Send(AcquisitionStarted{sessionEvent{session.ID}, cfg.FirstIndex, len(session.Segments)})
	acquirer := &Acquirer{
		Fetcher:     r.fetcher,
		Concurrency: cfg.Concurrency,
		Retries:     cfg.Retries,
		RetryDelay:  cfg.RetryDelay,
		OnSegment: func(res SegmentResult, count int) {
			r.events.Send(SegmentAcquired{sessionEvent{session.ID}, res.Index, count, res.Path, res.Bytes})
		},
	}
	acq := acquirer.Acquire(ctx, session)
	result.Acquisition = acq
	r.events.Send(AcquisitionFinished{sessionEvent{session.ID}, len(acq.Segments), acq.Reason, acq.Err})
	record.Segments = len(acq.Segments)
	record.Termination = acq.Reason.String()
	if !acq.Interrupted() && len(acq.Segments) > 0 {
		record.Status = SessionStatusAssembling
		if err := r.store.PutSession(record); err != nil {
			warnings = multierror.Append(warnings, fmt.Errorf("failed to record session: %w", err))
		}
	}

	err := r.assemble(ctx, assembler, acq, result, log)
	if err != nil {
		record.Status = SessionStatusFailed
		record.Error = err.Error()
	} else {
		record.Status = SessionStatusComplete
		record.ArtifactPath = result.Artifact.Path
		if cfg.Cleanup {
			log.Infof("Removing segments directory %s", session.SegmentsDir)
			if cerr := os.RemoveAll(session.SegmentsDir); cerr != nil {
				warnings = multierror.Append(warnings, fmt.Errorf("failed to clean up segments: %w", cerr))
			}
		}
	}
	record.FinishedAt = time.Now()
	if perr := r.store.PutSession(record); perr != nil {
		warnings = multierror.Append(warnings, fmt.Errorf("failed to record session: %w", perr))
	}
	if werr := warnings.ErrorOrNil(); werr != nil {
		log.Warn(werr.Error())
	}
	r.publishFinished(result, cfg, err)
	return result, err
}

func (r *Runner) assemble(ctx context.Context, assembler *Assembler, acq *Acquisition, result *Result, log *zap.SugaredLogger) error {
	switch {
	case acq.Interrupted():
		return acq.Err
	case acq.Reason == TerminationError:
		log.Warnw("acquisition stopped earlier than expected", "segments", len(acq.Segments), "error", acq.Err)
	default:
		log.Infow("end of stream", "segments", len(acq.Segments))
	}
	if len(acq.Segments) == 0 {
		return ErrEmptyInput
	}
	r.events.Send(AssemblyStarted{sessionEvent{result.SessionID}, len(acq.Segments)})
	artifact, err := assembler.Assemble(ctx, acq.Segments, r.config.OutputName)
	if err != nil {
		return err
	}
	result.Artifact = artifact
	log.Infof("Transcode finished: %s", artifact.Path)
	return nil
}

// prepareResume loads segments left by an earlier run into the session.
func (r *Runner) prepareResume(session *Session, cfg Config, log *zap.SugaredLogger) error {
	existing, width, err := ExistingSegments(session)
	if err != nil {
		return configError("output_name", "cannot resume: %v", err)
	}
	if len(existing) == 0 {
		return nil
	}
	if !cfg.Resume {
		return configError("output_name", "'%s' already contains %d segments and resume is disabled", session.SegmentsDir, len(existing))
	}
	previous, err := r.store.GetSession(cfg.OutputName)
	if err != nil {
		log.Warnw("failed to read previous session", "error", err)
	} else if previous != nil {
		changes, err := diff.Diff(
			resumeParams{previous.URLTemplate, previous.FirstIndex},
			resumeParams{cfg.URLTemplate, cfg.FirstIndex},
		)
		if err != nil {
			return fmt.Errorf("failed to compare with previous session: %w", err)
		}
		for _, change := range changes {
			log.Warnw("session parameters changed since previous run", "field", change.Path, "from", change.From, "to", change.To)
		}
		if len(changes) > 0 {
			return configError("url_template", "'%s' holds segments from a different template or first number; remove it or use a new output name", session.SegmentsDir)
		}
	}
	log.Infof("'%s' exists, resuming after %d segments.", session.SegmentsDir, len(existing))
	session.Width = width
	session.Segments = existing
	return nil
}

func (r *Runner) publishFinished(result *Result, cfg Config, err error) {
	event := SessionFinished{
		sessionEvent: sessionEvent{result.SessionID},
		Name:         cfg.OutputName,
		Success:      err == nil,
		Err:          err,
	}
	if result.Artifact != nil {
		event.OutputPath = result.Artifact.Path
	}
	if err == nil && result.Acquisition != nil && result.Acquisition.Reason == TerminationError {
		event.Incomplete = true
	}
	r.events.Send(event)
}

// IsUserError returns true for errors caused by the session's inputs rather than the environment.
func IsUserError(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrEmptyInput)
}
