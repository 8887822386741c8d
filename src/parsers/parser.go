// backend/src/parsers/parser.go
package parsers

import (
	"errors"
	"io"

	"github.com/username/optionfolio/backend/src/models"
)

// ErrInvalidInput signals a fatally malformed payload (e.g. not a
// transaction array at all). Individually malformed records are skipped with
// a warning instead.
var ErrInvalidInput = errors.New("invalid transaction payload")

// Parser turns one brokerage's raw transaction payload into normalized
// TransactionRecords. All numeric coercion and field mapping happens here, at
// the boundary; everything downstream works with typed records only.
type Parser interface {
	Parse(payload io.Reader) ([]models.TransactionRecord, error)
}
