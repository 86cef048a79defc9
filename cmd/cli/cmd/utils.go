package cmd

import (
	"fmt"
	"strconv"
	"strings"
)

// validateAndParseRunID validates that the argument is a non-empty, valid run ID
func validateAndParseRunID(arg string) (int64, error) {
	if strings.TrimSpace(arg) == "" {
		return 0, fmt.Errorf("run ID cannot be empty")
	}

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid run ID '%s': must be a positive integer", arg)
	}

	if id <= 0 {
		return 0, fmt.Errorf("invalid run ID '%d': must be a positive integer", id)
	}

	return id, nil
}
