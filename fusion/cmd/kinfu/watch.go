package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/kinfu/fusion"
	"go.viam.com/kinfu/logging"
	"go.viam.com/kinfu/rimage"
)

func watchAction(c *cli.Context, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := &frameWatcher{
		dir:       c.String(flagFrames),
		scale:     c.Float64(flagDepthScale),
		maxFrames: c.Int(flagMaxFrames),
		processed: map[string]bool{},
		rec:       newRecorder(),
		logger:    logger,
		newSession: func(first *rimage.DepthMap) (*fusion.Session, error) {
			return newSession(c, logger, first)
		},
	}
	if err := w.run(ctx); err != nil {
		return err
	}
	if w.session == nil {
		logger.Info("no frames fused")
		return nil
	}
	return w.rec.writeOutputs(c, w.session)
}

// frameWatcher fuses each new frame in dir once, in the order they are noticed.
type frameWatcher struct {
	dir        string
	scale      float64
	maxFrames  int
	processed  map[string]bool
	rec        *recorder
	logger     logging.Logger
	newSession func(first *rimage.DepthMap) (*fusion.Session, error)

	session *fusion.Session
	fused   int
}

// run returns nil when ctx is done or maxFrames frames have been fused.
func (w *frameWatcher) run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			w.logger.Warnw("closing watcher", "error", err)
		}
	}()
	// Watch before listing so frames written in between are not missed.
	if err := watcher.Add(w.dir); err != nil {
		return err
	}

	existing, err := listFrames(w.dir)
	if err != nil {
		return err
	}
	for _, path := range existing {
		if done, err := w.process(ctx, path); done || err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warnw("watch error", "error", err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isFrame(event.Name) {
				continue
			}
			if done, err := w.process(ctx, event.Name); done || err != nil {
				return err
			}
		}
	}
}

// process fuses the frame at path unless it was already fused. Frames that do not decode yet are
// left for a later event since they may still be being written.
func (w *frameWatcher) process(ctx context.Context, path string) (bool, error) {
	if w.processed[path] {
		return false, nil
	}
	dm, err := rimage.ReadDepthMap(path, w.scale)
	if err != nil {
		w.logger.Debugw("frame not readable yet", "path", path, "error", err)
		return false, nil
	}
	w.processed[path] = true

	if w.session == nil {
		if w.session, err = w.newSession(dm); err != nil {
			return true, err
		}
	}
	err = w.session.Execute(ctx, dm)
	switch {
	case err == nil, errors.Is(err, fusion.ErrTrackingLost):
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return true, nil
	default:
		return true, errors.Wrapf(err, "fusing %q", path)
	}
	w.rec.record(w.session, path, err)
	w.fused++
	w.logger.Debugw("fused", "path", path, "status", w.session.Status().String())
	return w.maxFrames > 0 && w.fused >= w.maxFrames, nil
}
