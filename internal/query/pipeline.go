package query

// Stage is one named filter step. A nil Predicate passes records through
// but still reports a count.
type Stage[T any] struct {
	Name      string
	Predicate Predicate[T]
}

// StageCount is the number of records left after a stage
type StageCount struct {
	Stage   string `json:"stage"`
	Count   int    `json:"count"`
	Removed int    `json:"removed"`
}

// Result is the output of a pipeline run
type Result[T any] struct {
	Records []T
	Trail   []StageCount
}

// Count returns the count recorded after the named stage, or -1
func (r Result[T]) Count(stage string) int {
	for _, sc := range r.Trail {
		if sc.Stage == stage {
			return sc.Count
		}
	}
	return -1
}

// StageBase is the trail entry for the input before any stage runs
const StageBase = "base"

// Pipeline applies its stages strictly in order, each to the output of the
// previous one. Record order is preserved.
type Pipeline[T any] struct {
	stages []Stage[T]
}

// NewPipeline creates a pipeline from stages
func NewPipeline[T any](stages ...Stage[T]) *Pipeline[T] {
	return &Pipeline[T]{stages: stages}
}

// Add appends a stage
func (p *Pipeline[T]) Add(name string, pred Predicate[T]) *Pipeline[T] {
	p.stages = append(p.stages, Stage[T]{Name: name, Predicate: pred})
	return p
}

// Run filters records through every stage
func (p *Pipeline[T]) Run(records []T) Result[T] {
	trail := make([]StageCount, 0, len(p.stages)+1)
	trail = append(trail, StageCount{Stage: StageBase, Count: len(records)})

	current := records
	for _, stage := range p.stages {
		before := len(current)
		current = Filter(current, stage.Predicate)
		trail = append(trail, StageCount{
			Stage:   stage.Name,
			Count:   len(current),
			Removed: before - len(current),
		})
	}

	if current == nil {
		current = []T{}
	}
	return Result[T]{Records: current, Trail: trail}
}
