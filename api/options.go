package api

import "github.com/weeklypack/pagepackd/coordinator"

// decodeOptions turns the loosely typed "options" bag into a strongly
// typed coordinator.Options. Unknown keys are ignored; a key present
// with the wrong JSON type falls back to the default for that field
// rather than rejecting the whole request.
func decodeOptions(raw map[string]interface{}) coordinator.Options {
	opts := coordinator.Options{
		RateLimitMs:    0,
		TimeoutSeconds: coordinator.DefaultTimeoutSeconds,
		ForceRefresh:   false,
		ClientHasPack:  false,
	}
	if raw == nil {
		return opts
	}

	if v, ok := intField(raw, "rate_limit_ms"); ok {
		opts.RateLimitMs = v
	}
	if v, ok := intField(raw, "timeout_s"); ok {
		opts.TimeoutSeconds = v
	}
	if v, ok := boolField(raw, "force_refresh"); ok {
		opts.ForceRefresh = v
	}
	if v, ok := boolField(raw, "client_has_pack"); ok {
		opts.ClientHasPack = v
	}
	return opts
}

// intField reads a numeric field decoded by encoding/json, which
// represents all JSON numbers as float64.
func intField(raw map[string]interface{}, key string) (int, bool) {
	v, present := raw[key]
	if !present {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func boolField(raw map[string]interface{}, key string) (bool, bool) {
	v, present := raw[key]
	if !present {
		return false, false
	}
	b, ok := v.(bool)
	if !ok {
		return false, false
	}
	return b, true
}
