package config

import (
	"reflect"

	"github.com/mitchellh/mapstructure"

	"github.com/caldera-rt/runner/internal/core"
)

// stringToIDHookFunc teaches mapstructure to parse a YAML string into a
// core.ID (UUID) field, since core.ID has no mapstructure-visible
// conversion of its own.
func stringToIDHookFunc() mapstructure.DecodeHookFunc {
	idType := reflect.TypeOf(core.ID{})
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != idType {
			return data, nil
		}
		return core.ParseID(data.(string))
	}
}
