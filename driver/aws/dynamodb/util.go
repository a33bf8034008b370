package dynamodb

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dogmatiq/recorderkit/recorder"
)

// getAttr returns the attribute of item with the given name, which must be
// of type T. A missing or mistyped attribute indicates a corrupt item and
// classifies as [recorder.ErrData].
func getAttr[T types.AttributeValue](
	item map[string]types.AttributeValue,
	name string,
) (T, error) {
	var v T

	a, ok := item[name]
	if !ok {
		return v, recorder.Errorf(
			recorder.ErrData,
			"item is corrupt: missing %q attribute",
			name,
		)
	}

	v, ok = a.(T)
	if !ok {
		return v, recorder.Errorf(
			recorder.ErrData,
			"item is corrupt: %q attribute is %T, expected %T",
			name,
			a,
			v,
		)
	}

	return v, nil
}
