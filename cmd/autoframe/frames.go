package main

import (
	"context"
	"image"
	_ "image/jpeg" // frame decoders
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	apperrors "github.com/cliplab/autoframe/internal/errors"
	"github.com/cliplab/autoframe/internal/pipeline"
)

// frameDir reads pre-extracted frames from a directory of image files,
// ordered by filename, timestamped at a fixed rate.
type frameDir struct {
	paths  []string
	fps    float64
	cursor int
}

func newFrameDir(dir string, fps float64) (*frameDir, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDecodeFailure, "reading frame directory")
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".jpg", ".jpeg", ".png":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, apperrors.Newf(apperrors.CodeDecodeFailure, "no frames in %s", dir)
	}
	sort.Strings(paths)
	return &frameDir{paths: paths, fps: fps}, nil
}

func (s *frameDir) Next(ctx context.Context) (pipeline.Frame, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Frame{}, err
	}
	if s.cursor >= len(s.paths) {
		return pipeline.Frame{}, io.EOF
	}
	i := s.cursor
	s.cursor++
	t := time.Duration(float64(i) / s.fps * float64(time.Second))

	f, err := os.Open(s.paths[i])
	if err != nil {
		return pipeline.Frame{T: t}, apperrors.Wrapf(err, apperrors.CodeDecodeFailure, "opening frame %s", s.paths[i])
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return pipeline.Frame{T: t}, apperrors.Wrapf(err, apperrors.CodeDecodeFailure, "decoding frame %s", s.paths[i])
	}
	return pipeline.Frame{T: t, Image: img}, nil
}

func (s *frameDir) Close() error { return nil }
