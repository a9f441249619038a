package testutils

import (
	"fmt"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/kinfu/rimage"
)

// WriteDepthFrames writes frames into dir as 16-bit PNGs named so that they sort in order, and
// returns their paths.
func WriteDepthFrames(t *testing.T, dir string, frames ...*rimage.DepthMap) []string {
	t.Helper()
	paths := make([]string, 0, len(frames))
	for i, dm := range frames {
		path := filepath.Join(dir, fmt.Sprintf("frame_%05d.png", i))
		test.That(t, rimage.WriteDepthMap(path, dm, rimage.DefaultDepthScale), test.ShouldBeNil)
		paths = append(paths, path)
	}
	return paths
}
