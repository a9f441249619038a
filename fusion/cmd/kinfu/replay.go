package main

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"go.viam.com/kinfu/fusion"
	"go.viam.com/kinfu/logging"
	"go.viam.com/kinfu/rimage"
)

func replayAction(c *cli.Context, logger logging.Logger) error {
	paths, err := listFrames(c.String(flagFrames))
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.Errorf("no frames found in %q", c.String(flagFrames))
	}
	workers := c.Int(flagWorkers)
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	scale := c.Float64(flagDepthScale)

	var (
		session *fusion.Session
		rec     = newRecorder()
	)
	for start := 0; start < len(paths); start += workers {
		end := start + workers
		if end > len(paths) {
			end = len(paths)
		}
		window, err := decodeFrames(c.Context, paths[start:end], scale, workers)
		if err != nil {
			return err
		}
		for i, dm := range window {
			if session == nil {
				if session, err = newSession(c, logger, dm); err != nil {
					return err
				}
			}
			path := paths[start+i]
			err := session.Execute(c.Context, dm)
			if err != nil && !errors.Is(err, fusion.ErrTrackingLost) {
				return errors.Wrapf(err, "fusing %q", path)
			}
			rec.record(session, path, err)
		}
	}
	logger.Infow("replay done", "frames", len(paths), "lost", rec.lost)
	return rec.writeOutputs(c, session)
}

// decodeFrames reads the given depth images concurrently, preserving order.
func decodeFrames(ctx context.Context, paths []string, scale float64, limit int) ([]*rimage.DepthMap, error) {
	frames := make([]*rimage.DepthMap, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dm, err := rimage.ReadDepthMap(path, scale)
			if err != nil {
				return errors.Wrapf(err, "reading %q", path)
			}
			frames[i] = dm
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}
