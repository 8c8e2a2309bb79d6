package executor

// Stage enumerates the pipeline states. StageDone is terminal.
type Stage int

const (
	StageRetrieve Stage = iota
	StageAuthorize
	StageSelect
	StageAnalyze
	StageCompute
	StageSynthesize
	StageDone
)

// stageCount bounds the number of transitions a single run may take.
const stageCount = int(StageDone) + 1

func (s Stage) String() string {
	switch s {
	case StageRetrieve:
		return "retrieve"
	case StageAuthorize:
		return "authorize"
	case StageSelect:
		return "select"
	case StageAnalyze:
		return "analyze"
	case StageCompute:
		return "compute"
	case StageSynthesize:
		return "synthesize"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}
