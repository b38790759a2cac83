package errors

// FormatForLog formats an error as key-value pairs suitable for slog
// attributes (slog.Any("error", errors.FormatForLog(err))).
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	ie, ok := err.(*IndexError)
	if !ok {
		return map[string]any{"error": err.Error()}
	}

	result := map[string]any{
		"error_code": ie.Code,
		"message":    ie.Message,
		"category":   string(ie.Category),
		"severity":   string(ie.Severity),
		"retryable":  ie.Retryable,
	}

	if ie.Cause != nil {
		result["cause"] = ie.Cause.Error()
	}

	for k, v := range ie.Details {
		result["detail_"+k] = v
	}

	return result
}
