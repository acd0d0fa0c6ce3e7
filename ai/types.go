package ai

// SegmentKinds defines the valid structural categories for detected segments.
// These kinds are used by boundary detectors to classify document regions.
var SegmentKinds = []string{
	"heading",
	"paragraph",
	"list",
	"table",
	"code",
	"quote",
	"caption",
	"footnote",
}

// ValidSegmentKind reports whether kind is one of the predefined kinds.
func ValidSegmentKind(kind string) bool {
	for _, k := range SegmentKinds {
		if k == kind {
			return true
		}
	}
	return false
}
