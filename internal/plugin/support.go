package plugin

// Support is the compatibility verdict of a plugin against the running assistant.
type Support int

const (
	// Supported plugins declare a range that includes the assistant.
	Supported Support = iota
	// SupportedUnknownFuture plugins set no upper bound; they may break on newer assistants.
	SupportedUnknownFuture
	// UnsupportedNew plugins cap support below the running assistant.
	UnsupportedNew
	// UnsupportedOld plugins require a newer assistant.
	UnsupportedOld
)

func (s Support) String() string {
	switch s {
	case Supported:
		return "supported"
	case SupportedUnknownFuture:
		return "supported_unknown_future"
	case UnsupportedNew:
		return "unsupported_new"
	case UnsupportedOld:
		return "unsupported_old"
	default:
		return "unknown"
	}
}

// Enabled reports whether the verdict alone allows registration.
func (s Support) Enabled() bool {
	return s == Supported || s == SupportedUnknownFuture
}

// Compatibility judges assistant against the optional bounds a plugin declares.
// Meeting the lower bound exactly counts as supported. With both bounds
// declared, an assistant below min is UnsupportedOld rather than Supported.
func Compatibility(assistant Version, min, max *Version) Support {
	if max == nil {
		switch {
		case min == nil || assistant.Compare(*min) > 0:
			return SupportedUnknownFuture
		case assistant.Compare(*min) < 0:
			return UnsupportedOld
		default:
			return Supported
		}
	}

	if assistant.Compare(*max) > 0 {
		return UnsupportedNew
	}
	if min != nil && assistant.Compare(*min) < 0 {
		return UnsupportedOld
	}

	return Supported
}
