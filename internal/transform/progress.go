package transform

// ProgressInfo は進捗の目安です。
// 実際の転送バイト数ではなく、リクエストの節目ごとに進めます。
type ProgressInfo struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage,omitempty"`
}

// 進捗の節目
const (
	StageDispatch  = "dispatch"
	StageUploaded  = "uploaded"
	StageResponse  = "response"
	StageCompleted = "completed"
)

var checkpoints = map[string]int{
	StageDispatch:  10,
	StageUploaded:  10,
	StageResponse:  80,
	StageCompleted: 100,
}

func checkpoint(stage string) ProgressInfo {
	return ProgressInfo{Stage: stage, Percent: clampPercent(checkpoints[stage])}
}

func clampPercent(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
