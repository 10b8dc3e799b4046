package redis

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jacentio/strata/store"
)

// idField is stored in every hash so that an entity whose fields are all
// nil still has a non-empty hash. Field names never start with '_'.
const idField = "_id"

// encodeValue renders a serialized field value as a hash string. The
// bool result is false for nil, which is stored by omitting the field.
func encodeValue(v any) (string, bool, error) {
	switch val := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return val, true, nil
	case int64:
		return strconv.FormatInt(val, 10), true, nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), true, nil
	case bool:
		return strconv.FormatBool(val), true, nil
	case time.Time:
		return val.UTC().Format(store.TimeLayout), true, nil
	case store.Key:
		return val.Ref(), true, nil
	}
	return "", false, fmt.Errorf("%w: cannot store %T in a hash", store.ErrBadValue, v)
}

// encodeHash renders every non-nil value of an entity.
func encodeHash(id string, values store.Values) (map[string]string, error) {
	hash := map[string]string{idField: id}
	for name, v := range values {
		s, ok, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		if ok {
			hash[name] = s
		}
	}
	return hash, nil
}

// decodeHash returns the stored field strings. Model.FromDatabase decodes
// them into typed values; fields missing from the hash are nil.
func decodeHash(hash map[string]string) store.Values {
	values := make(store.Values, len(hash))
	for name, s := range hash {
		if strings.HasPrefix(name, "_") {
			continue
		}
		values[name] = s
	}
	return values
}
