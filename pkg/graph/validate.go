package graph

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/chirality-ai/valley/pkg/common"

	"github.com/go-playground/validator"
)

// validate is safe for concurrent use and caches struct metadata.
var validate = validator.New()

// ValidateDocument checks doc against the structural rules of ingestion:
// required fields, known kinds, a shape that fits the kind, axes that fit
// the shape, a grid whose extent matches the shape and stations from the
// catalog. It never touches the store.
func ValidateDocument(doc common.Document, stations []string) error {
	if err := validate.Struct(doc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return common.Invalid(fe.Namespace(), "failed %q check", fe.Tag())
		}
		return common.Invalid("document", "%v", err)
	}

	seen := make(map[string]struct{}, len(doc.Components))
	for i, c := range doc.Components {
		field := fmt.Sprintf("components[%d]", i)
		if _, dup := seen[c.ID]; dup {
			return common.Invalid(field+".id", "duplicate component id %q", c.ID)
		}
		seen[c.ID] = struct{}{}

		if err := validateComponent(field, c, stations); err != nil {
			return err
		}
	}
	return nil
}

func validateComponent(field string, c common.Component, stations []string) error {
	if c.Station != nil {
		name := strings.TrimSpace(*c.Station)
		if name == "" {
			return common.Invalid(field+".station", "station must not be blank")
		}
		if !slices.Contains(stations, name) {
			return common.Invalid(field+".station", "unknown station %q", name)
		}
	}

	switch c.Kind {
	case common.KindArray:
		if len(c.Shape) != 1 {
			return common.Invalid(field+".shape", "array needs 1 dimension, got %d", len(c.Shape))
		}
	case common.KindMatrix:
		if len(c.Shape) != 2 {
			return common.Invalid(field+".shape", "matrix needs 2 dimensions, got %d", len(c.Shape))
		}
	case common.KindTensor:
		if len(c.Shape) < 2 {
			return common.Invalid(field+".shape", "tensor needs at least 2 dimensions, got %d", len(c.Shape))
		}
		cols := 1
		for _, d := range c.Shape[1:] {
			if d > 0 && cols > math.MaxInt/d {
				return common.Invalid(field+".shape", "trailing dimensions %v overflow the cell grid", c.Shape[1:])
			}
			cols *= d
		}
	}

	if len(c.Axes) > len(c.Shape) {
		return common.Invalid(field+".axes", "%d axes for %d dimensions", len(c.Axes), len(c.Shape))
	}
	for i, a := range c.Axes {
		if len(a.Labels) > 0 && len(a.Labels) != c.Shape[i] {
			return common.Invalid(fmt.Sprintf("%s.axes[%d].labels", field, i),
				"%d labels for dimension of size %d", len(a.Labels), c.Shape[i])
		}
	}

	rows, cols := c.GridDims()
	if len(c.Data) != rows {
		return common.Invalid(field+".data", "grid has %d rows, shape implies %d", len(c.Data), rows)
	}
	for r, row := range c.Data {
		if len(row) != cols {
			return common.Invalid(fmt.Sprintf("%s.data[%d]", field, r),
				"row has %d cells, shape implies %d", len(row), cols)
		}
	}
	return nil
}
