package models

// Quality is the requested capture quality.
type Quality string

const (
	QualityLow    Quality = "LOW"
	QualityMedium Quality = "MEDIUM"
	QualityHigh   Quality = "HIGH"
)

// QualityFromHeight maps a stream height to a quality. Unmapped heights
// default to HIGH.
func QualityFromHeight(height int) Quality {
	switch height {
	case 480:
		return QualityLow
	case 720:
		return QualityMedium
	case 1080:
		return QualityHigh
	default:
		return QualityHigh
	}
}

// Height maps a quality back to a stream height. Unknown values default to
// 1080 (HIGH).
func (q Quality) Height() int {
	switch q {
	case QualityLow:
		return 480
	case QualityMedium:
		return 720
	case QualityHigh:
		return 1080
	default:
		return 1080
	}
}
