package catalog

// PreferredVariant picks a download encoding: an mp3 at the preferred
// bitrate if offered, otherwise the highest-bitrate mp3, otherwise the
// highest bitrate of any codec. False when nothing usable is offered.
func PreferredVariant(variants []Variant, preferredKbps int) (Variant, bool) {
	for _, v := range variants {
		if v.Codec == "mp3" && v.BitrateKbps == preferredKbps {
			return v, true
		}
	}

	var best Variant
	found := false
	for _, v := range variants {
		if v.Codec != "mp3" {
			continue
		}
		if !found || v.BitrateKbps > best.BitrateKbps {
			best, found = v, true
		}
	}
	if found {
		return best, true
	}

	for _, v := range variants {
		if v.BitrateKbps <= 0 {
			continue
		}
		if !found || v.BitrateKbps > best.BitrateKbps {
			best, found = v, true
		}
	}
	return best, found
}
