package pipeline

// StepName identifies a pipeline stage.
type StepName string

const (
	StepResearch  StepName = "research"
	StepDraft     StepName = "draft"
	StepTranslate StepName = "translate"
	StepWorkflow  StepName = "workflow"
)

// StepResult records the outcome of a single pipeline stage. When Success
// is false, Err is set; when true, Data is set (fallback payloads count as
// data). Metadata carries the error classification for the research step.
type StepResult struct {
	Step     StepName
	Success  bool
	Data     map[string]any
	Err      error
	Metadata map[string]any
}

// PipelineResult aggregates one StepResult per completed stage plus the
// overall outcome of a run. It is terminal once the workflow step has been
// appended.
type PipelineResult struct {
	RunID   string
	Success bool
	Steps   []StepResult
}

// StepFor returns the result for the named step, if the run reached it.
func (r *PipelineResult) StepFor(name StepName) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Step == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// FailedStep returns the first unsuccessful non-workflow step, if any.
func (r *PipelineResult) FailedStep() (StepResult, bool) {
	for _, s := range r.Steps {
		if !s.Success && s.Step != StepWorkflow {
			return s, true
		}
	}
	return StepResult{}, false
}
