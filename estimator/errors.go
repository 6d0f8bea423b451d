package estimator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/densekit/densekit/model"
)

// ErrEmptyLogits is returned by Softmax and ComputeF1 for a zero-row input.
var ErrEmptyLogits = errors.New("estimator: empty logits")

// UnknownModelTypeError is returned at construction for a model type outside
// the supported set.
type UnknownModelTypeError struct {
	ModelType string
}

func (e *UnknownModelTypeError) Error() string {
	kinds := model.SupportedKinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return fmt.Sprintf("estimator: unknown model type %q (supported: %s)",
		e.ModelType, strings.Join(names, ", "))
}
