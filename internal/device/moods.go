package device

// Moods lists the light programs in wire order. Index 0 must be off.
var Moods = []string{
	"Light OFF",
	"Red",
	"Green",
	"Blue",
	"Yellow",
	"Cyan",
	"Purple",
	"Pink",
	"Orange",
	"White",
	"Color Cycle",
	"Rainbow",
	"Party",
}

// ValidMood reports whether i indexes Moods
func ValidMood(i int) bool {
	return i >= 0 && i < len(Moods)
}

// MoodName returns the display name for i, or "" when out of range
func MoodName(i int) string {
	if !ValidMood(i) {
		return ""
	}
	return Moods[i]
}
