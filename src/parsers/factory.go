// backend/src/parsers/factory.go
package parsers

import (
	"fmt"
	"io"

	"github.com/username/optionfolio/backend/src/models"
	"github.com/username/optionfolio/backend/src/parsers/tastytrade"
)

// taxonomyParser folds any fatal error from the source-specific parser into
// this package's ErrInvalidInput sentinel, so callers only ever match one
// error.
type taxonomyParser struct {
	inner Parser
}

func (p taxonomyParser) Parse(payload io.Reader) ([]models.TransactionRecord, error) {
	records, err := p.inner.Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return records, nil
}

func GetParser(source string) (Parser, error) {
	switch source {
	case "tastytrade":
		return taxonomyParser{inner: tastytrade.NewParser()}, nil
	default:
		return nil, fmt.Errorf("no parser available for source: %s", source)
	}
}
