package audio

import (
	"github.com/cliplab/autoframe/internal/pipeline"
)

// The capturer must satisfy the pipeline source contract.
var _ pipeline.AudioSource = (*Capturer)(nil)
