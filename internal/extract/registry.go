package extract

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ForSource returns the extractor registered for the given source system
// name, bound to the given file path.
func ForSource(source, sourcePath string, logger zerolog.Logger) (Extractor, error) {
	switch source {
	case SourceQuickBooks:
		return NewQuickBooksExtractor(sourcePath, logger), nil
	case SourceRootfi:
		return NewRootfiExtractor(sourcePath, logger), nil
	default:
		return nil, fmt.Errorf("unknown source system: %s (expected %s or %s)",
			source, SourceQuickBooks, SourceRootfi)
	}
}

// Sources lists the registered source system names in pipeline order.
func Sources() []string {
	return []string{SourceQuickBooks, SourceRootfi}
}
