package plugin

// Set holds at most one plugin per capability. A nil field means the
// capability is absent.
type Set struct {
	ImageProcessor ImageProcessor
	ImageEmbedder  ImageEmbedder
	TextEmbedder   TextEmbedder
	Similarity     Similarity
	Database       Database
}

// Get returns the plugin in a slot
func (s *Set) Get(c Capability) (Plugin, bool) {
	var p Plugin
	switch c {
	case CapabilityImageProcessor:
		if s.ImageProcessor != nil {
			p = s.ImageProcessor
		}
	case CapabilityImageEmbedder:
		if s.ImageEmbedder != nil {
			p = s.ImageEmbedder
		}
	case CapabilityTextEmbedder:
		if s.TextEmbedder != nil {
			p = s.TextEmbedder
		}
	case CapabilitySimilarity:
		if s.Similarity != nil {
			p = s.Similarity
		}
	case CapabilityDatabase:
		if s.Database != nil {
			p = s.Database
		}
	}
	return p, p != nil
}

// Present lists the filled slots in canonical order
func (s *Set) Present() []Capability {
	var out []Capability
	for _, c := range Capabilities {
		if _, ok := s.Get(c); ok {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of filled slots
func (s *Set) Len() int {
	return len(s.Present())
}
