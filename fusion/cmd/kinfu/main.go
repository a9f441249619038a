// Package main is the kinfu command: it fuses depth frames from a directory into a volume.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/kinfu/fusion"
	"go.viam.com/kinfu/logging"
	"go.viam.com/kinfu/rimage"
	"go.viam.com/kinfu/rimage/transform"
)

const (
	// Flags.
	flagFrames       = "frames"
	flagCamera       = "camera"
	flagConfig       = "config"
	flagDepthScale   = "depth-scale"
	flagPCD          = "pcd"
	flagTrajectory   = "trajectory"
	flagPreview      = "preview"
	flagPreviewScale = "preview-scale"
	flagWorkers      = "workers"
	flagMaxFrames    = "max-frames"
	flagDebug        = "debug"
	flagLogFile      = "log-file"

	logFileMaxSizeMB = 64
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(out, errOut io.Writer) *cli.App {
	var (
		logger  logging.Logger
		logFile io.Closer
	)

	inputFlags := []cli.Flag{
		&cli.StringFlag{
			Name:      flagFrames,
			Usage:     "directory of 16-bit depth `PNG`s",
			Required:  true,
			TakesFile: true,
		},
		&cli.StringFlag{
			Name:      flagCamera,
			Usage:     "camera intrinsics and distortion `JSON`; defaults to an ideal camera sized to the frames",
			TakesFile: true,
		},
		&cli.StringFlag{
			Name:      flagConfig,
			Aliases:   []string{"c"},
			Usage:     "fusion configuration `FILE`",
			TakesFile: true,
		},
		&cli.Float64Flag{
			Name:  flagDepthScale,
			Usage: "raw depth units per meter",
			Value: rimage.DefaultDepthScale,
		},
	}
	outputFlags := []cli.Flag{
		&cli.StringFlag{
			Name:      flagPCD,
			Usage:     "write the final cast as a point cloud to `FILE`",
			TakesFile: true,
		},
		&cli.StringFlag{
			Name:      flagTrajectory,
			Usage:     "write camera to world poses, one KITTI row per frame, to `FILE`",
			TakesFile: true,
		},
		&cli.StringFlag{
			Name:      flagPreview,
			Usage:     "write a shaded image of the final cast to `FILE`",
			TakesFile: true,
		},
		&cli.IntFlag{
			Name:  flagPreviewScale,
			Usage: "preview enlargement factor",
			Value: 2,
		},
	}

	return &cli.App{
		Name:      "kinfu",
		Usage:     "fuse depth frames into a truncated signed distance volume",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:      flagLogFile,
				Usage:     "also write logs to `FILE`, rotating it as it grows",
				TakesFile: true,
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger = logging.NewDebugLogger("kinfu")
			} else {
				logger = logging.NewLogger("kinfu")
			}
			if path := c.String(flagLogFile); path != "" {
				var appender logging.Appender
				appender, logFile = logging.NewRotatingFileAppender(path, logFileMaxSizeMB)
				logger.AddAppender(appender)
			}
			logging.ReplaceGlobal(logger)
			return nil
		},
		After: func(c *cli.Context) error {
			if logFile == nil {
				return nil
			}
			return multierr.Combine(logger.Sync(), logFile.Close())
		},
		Commands: []*cli.Command{
			{
				Name:  "replay",
				Usage: "fuse every frame in a directory in lexical order",
				Flags: append(append([]cli.Flag{
					&cli.IntFlag{
						Name:  flagWorkers,
						Usage: "frames decoded concurrently",
						Value: 4,
					},
				}, inputFlags...), outputFlags...),
				Action: func(c *cli.Context) error {
					return replayAction(c, logger)
				},
			},
			{
				Name:  "watch",
				Usage: "fuse frames as they are written to a directory",
				Flags: append(append([]cli.Flag{
					&cli.IntFlag{
						Name:  flagMaxFrames,
						Usage: "stop after fusing this many frames; 0 runs until interrupted",
					},
				}, inputFlags...), outputFlags...),
				Action: func(c *cli.Context) error {
					return watchAction(c, logger)
				},
			},
			{
				Name:  "schema",
				Usage: "print the JSON schema of the fusion configuration",
				Action: func(c *cli.Context) error {
					return printSchema(c.App.Writer)
				},
			},
		},
	}
}

func printSchema(out io.Writer) error {
	schema := jsonschema.Reflect(&fusion.Config{})
	buf, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(buf))
	return err
}

// listFrames returns the PNG files in dir in lexical order.
func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() && isFrame(entry.Name()) {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func isFrame(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".png")
}

func loadConfig(c *cli.Context) (fusion.Config, error) {
	path := c.String(flagConfig)
	if path == "" {
		return fusion.DefaultConfig(), nil
	}
	cfg, err := fusion.ReadConfig(path)
	if err != nil {
		return fusion.Config{}, err
	}
	return *cfg, nil
}

// loadCamera reads the camera file, or builds an ideal camera matching the first frame.
func loadCamera(c *cli.Context, first *rimage.DepthMap) (*transform.PinholeCameraModel, error) {
	if path := c.String(flagCamera); path != "" {
		return transform.NewPinholeCameraModelFromJSONFile(path)
	}
	if first == nil {
		return nil, errors.New("no camera file given and no frame to size a default camera from")
	}
	return transform.DefaultCameraModel(first.Width(), first.Height()), nil
}

// newSession builds a session ready for the first frame.
func newSession(c *cli.Context, logger logging.Logger, first *rimage.DepthMap) (*fusion.Session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	cam, err := loadCamera(c, first)
	if err != nil {
		return nil, err
	}
	session := fusion.NewSession(logger)
	if err := session.Init(cfg, cam, nil); err != nil {
		return nil, err
	}
	return session, nil
}
