package disk

import (
	"github.com/go-playground/validator/v10"

	"drivemeta/internal/model"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// validateImport applies every input rule that needs no store access:
// tag-level constraints, batch-unique ids, and the url/size-iff-file
// rule. Cross-type id collisions need current rows and are checked
// inside the mutation transaction.
func validateImport(req *model.ImportRequest) error {
	if req.UpdateDate.IsZero() {
		return validationf("updateDate is required")
	}
	if err := structValidator.Struct(req); err != nil {
		return &ValidationError{Reason: err.Error()}
	}

	seen := make(map[string]bool, len(req.Items))
	for _, it := range req.Items {
		if seen[it.ID] {
			return validationf("duplicate id %q in batch", it.ID)
		}
		seen[it.ID] = true

		switch it.Type {
		case model.TypeFile:
			if it.URL == nil {
				return validationf("file %q requires url", it.ID)
			}
			if it.Size == nil || *it.Size <= 0 {
				return validationf("file %q requires size > 0", it.ID)
			}
		case model.TypeFolder:
			if it.URL != nil {
				return validationf("folder %q must not carry url", it.ID)
			}
			if it.Size != nil {
				return validationf("folder %q must not carry size", it.ID)
			}
		}
	}
	return nil
}
