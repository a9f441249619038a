package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/kinfu/fusion"
	"go.viam.com/kinfu/pointcloud"
	"go.viam.com/kinfu/rimage"
	"go.viam.com/kinfu/spatialmath"
)

// recorder collects one table row and one trajectory entry per fused frame.
type recorder struct {
	table    table.Writer
	poses    []spatialmath.Pose
	lastGood spatialmath.Pose
	lost     int
}

func newRecorder() *recorder {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "File", "Status", "Correspondences", "Iterations", "RMS", "Cast Points", "Total"})
	return &recorder{table: t, lastGood: spatialmath.NewZeroPose()}
}

// record notes the outcome of fusing the frame at path. Frames without a trusted pose repeat the
// last one so the trajectory keeps one line per frame.
func (r *recorder) record(session *fusion.Session, path string, fuseErr error) {
	stats, _ := session.LastFrameStats()
	if pose, ok := session.Pose(); ok {
		r.lastGood = pose
	}
	if fuseErr != nil {
		r.lost++
	}
	r.poses = append(r.poses, r.lastGood)

	status := stats.Status.String()
	if fuseErr != nil {
		status = fmt.Sprintf("%s (%v)", status, fuseErr)
	}
	r.table.AppendRow(table.Row{
		stats.Frame,
		filepath.Base(path),
		status,
		stats.Correspondences,
		stats.Iterations,
		fmt.Sprintf("%.5f", stats.RMS),
		stats.CastPoints,
		stats.Total.Round(time.Microsecond),
	})
}

// writeOutputs renders the summary table and writes whichever output files were requested.
func (r *recorder) writeOutputs(c *cli.Context, session *fusion.Session) error {
	if _, err := fmt.Fprintln(c.App.Writer, r.table.Render()); err != nil {
		return err
	}
	if path := c.String(flagTrajectory); path != "" {
		if err := writeTrajectory(path, r.poses); err != nil {
			return err
		}
	}

	pcdPath, previewPath := c.String(flagPCD), c.String(flagPreview)
	if pcdPath == "" && previewPath == "" {
		return nil
	}
	cast, ok := session.Cast()
	if !ok {
		return errors.New("no cast to write; the last frame was not tracked")
	}
	if pcdPath != "" {
		pose, _ := session.Pose()
		cloud, err := fusion.CastToPointCloud(cast, pose)
		if err != nil {
			return err
		}
		if err := pointcloud.WriteToPCDFile(cloud, pcdPath); err != nil {
			return err
		}
	}
	if previewPath != "" {
		scale := c.Int(flagPreviewScale)
		if scale < 1 {
			return errors.Errorf("--%s must be at least 1, got %d", flagPreviewScale, scale)
		}
		if err := imaging.Save(rimage.ShadeNormalsScaled(cast, scale), previewPath); err != nil {
			return err
		}
	}
	return nil
}

// writeTrajectory writes camera to world poses as KITTI rows: the top three rows of the 4x4
// transform, row major.
func writeTrajectory(path string, poses []spatialmath.Pose) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	for _, pose := range poses {
		if err := writeKITTIRow(w, pose); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeKITTIRow(w io.Writer, pose spatialmath.Pose) error {
	m := spatialmath.PoseToMat4(spatialmath.PoseInverse(pose))
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			sep := " "
			if row == 2 && col == 3 {
				sep = "\n"
			}
			if _, err := fmt.Fprintf(w, "%.9g%s", m.At(row, col), sep); err != nil {
				return err
			}
		}
	}
	return nil
}
