package timeline

import (
	"fmt"
	"math"
)

// PxToSeconds converts a horizontal pixel offset to timeline seconds.
func PxToSeconds(px, pxPerSecond float64) float64 {
	if pxPerSecond <= 0 {
		return 0
	}
	return px / pxPerSecond
}

func SecondsToPx(seconds, pxPerSecond float64) float64 {
	return seconds * pxPerSecond
}

// FormatTime renders seconds as m:ss.
func FormatTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// FormatTimePrecise renders seconds as m:ss.cc.
func FormatTimePrecise(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	cs := int(math.Round(seconds * 100))
	return fmt.Sprintf("%d:%02d.%02d", cs/6000, (cs/100)%60, cs%100)
}

func Clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
