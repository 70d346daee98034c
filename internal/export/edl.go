// Package export renders the timeline as an edit decision list for
// finishing in an external editor.
package export

import (
	"fmt"
	"math"
	"path"
	"strings"

	"github.com/reelcut/reelcut/internal/timeline"
)

// Events converts the timeline into EDL events ordered by track then record
// position. Clips without media are skipped and their ids returned. resolve
// maps a clip's content reference to the path written in the list; a nil
// resolve writes the reference unchanged.
func Events(tl timeline.Timeline, includeAudio bool, resolve func(string) string) ([]Event, []string) {
	var (
		events  []Event
		skipped []string
	)
	for _, l := range tl.Layers {
		track := trackFor(l.Kind)
		if track == "" || (track != TrackVideo && !includeAudio) {
			continue
		}
		for _, c := range l.Sorted() {
			if !c.HasContent() {
				skipped = append(skipped, c.ID)
				continue
			}
			mediaPath := c.Content
			if resolve != nil {
				mediaPath = resolve(c.Content)
			}
			srcIn := secondsToMs(c.Metadata.TrimStart)
			recIn := secondsToMs(c.StartTime)
			dur := secondsToMs(c.Duration)
			events = append(events, Event{
				ClipID:      c.ID,
				ClipName:    clipName(c),
				MediaPath:   mediaPath,
				Track:       track,
				SourceInMs:  srcIn,
				SourceOutMs: srcIn + dur,
				RecordInMs:  recIn,
				RecordOutMs: recIn + dur,
			})
		}
	}
	return events, skipped
}

func trackFor(k timeline.Kind) string {
	switch k {
	case timeline.KindVideo:
		return TrackVideo
	case timeline.KindVoiceover:
		return TrackAudio1
	case timeline.KindMusic:
		return TrackAudio2
	}
	return ""
}

func clipName(c timeline.Clip) string {
	ref := strings.TrimPrefix(c.Content, "media://")
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if name := SanitizeName(path.Base(ref), 160); name != "" && name != "." && name != "/" {
		return name
	}
	return c.ID
}

func secondsToMs(s float64) int {
	return int(math.Round(s * 1000))
}

// GenerateEDL renders events as a CMX 3600 list. Record timecodes are the
// clips' timeline positions, so gaps between clips survive the export.
func GenerateEDL(events []Event, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	for i, ev := range events {
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", ev.Track,
				msToTimecode(ev.SourceInMs, fps), msToTimecode(ev.SourceOutMs, fps),
				msToTimecode(ev.RecordInMs, fps), msToTimecode(ev.RecordOutMs, fps)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", ev.ClipName),
			fmt.Sprintf("* MEDIA PATH:  %s", ev.MediaPath),
		)
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func msToTimecode(ms int, fps int) string {
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
