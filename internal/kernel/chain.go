package kernel

import (
	"slices"
	"time"
)

// BuildStage is one committed cell execution
type BuildStage struct {
	Position     int // 1-based place in the chain
	Instructions []string
	BaseImageID  string // empty for the first stage
	ImageID      string
	CommittedAt  time.Time
}

// ImageChain is the ordered list of committed stages. Its head is the
// checkpoint the next cell builds on. Stages are only ever appended.
type ImageChain struct {
	stages []BuildStage
}

// Checkpoint returns the image ID of the last committed stage
func (c *ImageChain) Checkpoint() (string, bool) {
	if len(c.stages) == 0 {
		return "", false
	}
	return c.stages[len(c.stages)-1].ImageID, true
}

// Len returns the number of committed stages
func (c *ImageChain) Len() int {
	return len(c.stages)
}

// commit appends a stage and returns the stored copy
func (c *ImageChain) commit(instructions []string, base, imageID string, at time.Time) BuildStage {
	stage := BuildStage{
		Position:     len(c.stages) + 1,
		Instructions: slices.Clone(instructions),
		BaseImageID:  base,
		ImageID:      imageID,
		CommittedAt:  at,
	}
	c.stages = append(c.stages, stage)
	return stage.clone()
}

// Stages returns copies of all committed stages
func (c *ImageChain) Stages() []BuildStage {
	out := make([]BuildStage, len(c.stages))
	for i, s := range c.stages {
		out[i] = s.clone()
	}
	return out
}

func (s BuildStage) clone() BuildStage {
	s.Instructions = slices.Clone(s.Instructions)
	return s
}
