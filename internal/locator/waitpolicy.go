package locator

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/driver"
)

// Intent names the action the caller is about to perform on the element it
// is resolving. The intent decides which readiness condition the element
// must satisfy before resolution counts as a success: a click needs an
// enabled target, a read only needs the node to exist.
type Intent string

const (
	IntentClick  Intent = "click"
	IntentFill   Intent = "fill"
	IntentSelect Intent = "select"
	IntentRead   Intent = "read"
)

// ConditionFor maps an intent to the element condition the query surface
// must wait for. The mapping is total: an unrecognized intent falls back to
// visibility with a warning rather than failing the resolution.
func ConditionFor(intent Intent, logger *zap.Logger) driver.Condition {
	switch intent {
	case IntentClick:
		return driver.ConditionInteractable
	case IntentFill:
		return driver.ConditionEditable
	case IntentSelect:
		return driver.ConditionVisible
	case IntentRead:
		return driver.ConditionAttached
	default:
		if logger != nil {
			logger.Warn("Unknown action intent, defaulting to visible.",
				zap.String("intent", string(intent)))
		}
		return driver.ConditionVisible
	}
}
