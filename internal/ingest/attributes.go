package ingest

func firstAttribute(attributes map[string]string, keys ...string) string {
	for _, key := range keys {
		if value := attributes[key]; value != "" {
			return value
		}
	}
	return ""
}

func cloneAttributes(attributes map[string]string) map[string]string {
	out := make(map[string]string, len(attributes))
	for k, v := range attributes {
		out[k] = v
	}
	return out
}

func mergeAttributes(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}

// ExtractService extracts the service name from record attributes.
func ExtractService(attributes map[string]string) string {
	if s := firstAttribute(attributes, "service.name", "service", "serviceName", "app", "__source__"); s != "" {
		return s
	}
	return "unknown"
}
