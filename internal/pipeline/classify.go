package pipeline

import "bitwise74/pulsestream/internal/model"

const (
	MaxSafeDuration = 4 * 60 * 60 // Seconds
	MaxSafeSize     = 2 << 30     // Bytes
)

// Classify flags videos longer than four hours or larger than 2 GiB. It is
// a size and duration policy only, nothing looks at the content. An unknown
// duration counts as zero.
func Classify(duration *int64, size int64) model.Sensitivity {
	var d int64
	if duration != nil {
		d = *duration
	}

	if d > MaxSafeDuration || size > MaxSafeSize {
		return model.SensitivityFlagged
	}

	return model.SensitivitySafe
}
