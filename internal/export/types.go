package export

// Track names follow CMX 3600: V for picture, A and A2 for the two audio
// layers.
const (
	TrackVideo  = "V"
	TrackAudio1 = "A"
	TrackAudio2 = "A2"
)

type ExportRequest struct {
	ProjectName  string  `json:"project_name"`
	Format       string  `json:"format"`
	FrameRate    float64 `json:"frame_rate"`
	OutputDir    string  `json:"output_dir"`
	IncludeAudio bool    `json:"include_audio"`
}

// Event is one edit: a source window placed at a record position.
type Event struct {
	ClipID      string
	ClipName    string
	MediaPath   string
	Track       string
	SourceInMs  int
	SourceOutMs int
	RecordInMs  int
	RecordOutMs int
}

type ExportResponse struct {
	Status     string   `json:"status"`
	Format     string   `json:"format"`
	OutputPath string   `json:"output_path"`
	EventCount int      `json:"event_count"`
	Skipped    []string `json:"skipped"`
}
