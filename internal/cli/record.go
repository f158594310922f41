package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"screen-recorder/internal/domain"
	"screen-recorder/internal/session"
)

const (
	defaultCompletionTimeout = 30 * time.Second
	noticeBuffer             = 64
)

type recordOptions struct {
	sourceID          string
	webcam            bool
	webcamSet         bool
	duration          time.Duration
	completionTimeout time.Duration
}

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	opts := recordOptions{}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a screen or window until interrupted",
		Long: "Record the chosen source (the first screen by default) into a new session folder.\n" +
			"Recording runs in the foreground: press Ctrl+C or pass --duration to stop.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.webcamSet = cmd.Flags().Changed("webcam")
			return runRecord(cmd.Context(), deps, opts, NewFormatter(cmd.OutOrStdout()))
		},
	}

	cmd.Flags().StringVarP(&opts.sourceID, "source", "s", "", "Source ID from 'screenrec sources' (default: first screen)")
	cmd.Flags().BoolVarP(&opts.webcam, "webcam", "w", false, "Also record the webcam (default: settings value)")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Stop automatically after this long")
	cmd.Flags().DurationVar(&opts.completionTimeout, "save-timeout", defaultCompletionTimeout, "How long to wait for files to be saved after stopping")

	return cmd
}

func runRecord(ctx context.Context, deps *Dependencies, opts recordOptions, f *Formatter) error {
	ctrl := deps.Engine.Controller()

	source, err := resolveSource(ctx, ctrl, opts.sourceID)
	if err != nil {
		return err
	}
	if opts.webcamSet {
		if err := ctrl.SetWebcamEnabled(opts.webcam); err != nil {
			return err
		}
	}

	events := newRecordEvents(noticeBuffer)
	unsubscribe := ctrl.Events().Subscribe(events.deliver)
	defer unsubscribe()

	if err := ctrl.SelectSource(ctx, source); err != nil {
		return err
	}
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	sess, _ := ctrl.Session()
	f.RecordingStarted(ctrl.View(), sess.WebcamEnabled, opts.duration)

	var deadline <-chan time.Time
	if opts.duration > 0 {
		timer := time.NewTimer(opts.duration)
		defer timer.Stop()
		deadline = timer.C
	}

wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-deadline:
			break wait
		case ev := <-events.notices:
			f.Event(ev)
		case ev := <-events.completed:
			events.drain(f)
			return completionResult(ev, f)
		}
	}

	if err := ctrl.Stop(); err != nil {
		return err
	}
	f.RecordingStopped(session.FormatElapsed(time.Since(sess.StartTime)))

	timeout := opts.completionTimeout
	if timeout <= 0 {
		timeout = defaultCompletionTimeout
	}
	saveTimer := time.NewTimer(timeout)
	defer saveTimer.Stop()
	for {
		select {
		case ev := <-events.notices:
			f.Event(ev)
		case ev := <-events.completed:
			events.drain(f)
			return completionResult(ev, f)
		case <-saveTimer.C:
			return fmt.Errorf("timed out after %s waiting for the recording to be saved", timeout)
		}
	}
}

// recordEvents splits bus events for the record loop. Notices are dropped
// when the buffer is full; the completed event is always kept.
type recordEvents struct {
	notices   chan session.Event
	completed chan session.Event
	once      sync.Once
}

func newRecordEvents(size int) *recordEvents {
	return &recordEvents{
		notices:   make(chan session.Event, size),
		completed: make(chan session.Event, 1),
	}
}

func (r *recordEvents) deliver(ev session.Event) {
	switch ev.Type {
	case session.EventTypeCompleted:
		r.once.Do(func() { r.completed <- ev })
	case session.EventTypeNotification, session.EventTypeError:
		select {
		case r.notices <- ev:
		default:
		}
	}
}

// drain prints notices queued before completion.
func (r *recordEvents) drain(f *Formatter) {
	for {
		select {
		case ev := <-r.notices:
			f.Event(ev)
		default:
			return
		}
	}
}

func resolveSource(ctx context.Context, ctrl *session.Controller, id string) (domain.CaptureSource, error) {
	sources, err := ctrl.ListSources(ctx)
	if err != nil {
		return domain.CaptureSource{}, err
	}
	if len(sources) == 0 {
		return domain.CaptureSource{}, errors.New("no capture sources found")
	}
	if id == "" {
		if screen, ok := lo.Find(sources, func(s domain.CaptureSource) bool { return s.Kind == domain.SourceKindScreen }); ok {
			return screen, nil
		}
		return sources[0], nil
	}
	source, ok := lo.Find(sources, func(s domain.CaptureSource) bool { return s.ID == id })
	if !ok {
		return domain.CaptureSource{}, fmt.Errorf("unknown source %q; run 'screenrec sources' to list them", id)
	}
	return source, nil
}

func completionResult(ev session.Event, f *Formatter) error {
	if ev.Level == session.LevelError {
		return errors.New(ev.Message)
	}
	f.Saved(ev.Path)
	return nil
}
