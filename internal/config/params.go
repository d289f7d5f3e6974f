package config

import (
	"fmt"
	"reflect"

	"yqhp/release-graph/pkg/types"
)

// DefaultParameters are used for fields neither the parameters file nor the
// environment set.
func DefaultParameters() types.Parameters {
	return types.Parameters{
		ReleaseType:       types.ReleaseTypeNightly,
		Project:           "focus-android",
		HeadRef:           "master",
		Level:             1,
		TasksFor:          types.TasksForGithubPush,
		TargetTasksMethod: "nightly",
	}
}

// LoadParameters reads trigger parameters with the same precedence as the
// configuration: defaults < YAML/JSON file < environment variables.
// An empty path skips the file. The result is validated.
func LoadParameters(path string) (types.Parameters, error) {
	params := DefaultParameters()

	if path != "" {
		if err := loadYAMLFile(path, &params); err != nil {
			return types.Parameters{}, fmt.Errorf("加载触发参数失败: %w", err)
		}
	}

	if err := applyEnvToStruct(reflect.ValueOf(&params).Elem()); err != nil {
		return types.Parameters{}, fmt.Errorf("应用环境变量覆盖失败: %w", err)
	}

	if err := params.Validate(); err != nil {
		return types.Parameters{}, err
	}
	return params, nil
}
