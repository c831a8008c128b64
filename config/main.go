package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	mslogger "mockproxy/logger"
	msUtils "mockproxy/utils"
)

// LoadRuleFile reads a JSON or YAML bootstrap file containing the engine's
// startup config and an initial rule set (§S2). Supports .json, .yaml, .yml.
func LoadRuleFile(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var rf RuleFile
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &rf); err != nil {
			return nil, fmt.Errorf("failed to parse JSON in '%s': %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &rf); err != nil {
			return nil, fmt.Errorf("failed to parse YAML in '%s': %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension '%s', must be .json, .yaml or .yml", ext)
	}

	if err := ApplyDefaultsAndValidate(&rf.Engine); err != nil {
		return nil, fmt.Errorf("engine config validation failed: %w", err)
	}

	resolveFilePaths(&rf, path)

	for i := range rf.Rules {
		if err := ValidateRuleDef(&rf.Rules[i]); err != nil {
			return nil, fmt.Errorf("rule[%d] validation failed: %w", i, err)
		}
	}

	mslogger.LogSuccess(fmt.Sprintf("Config loaded successfully from %s (%d rules)", path, len(rf.Rules)), 1)
	return &rf, nil
}

// resolveFilePaths rewrites every file-carrying field (the File step's
// filePath, a pass-through transform's replaceBodyFromFile) relative to the
// rule file's own directory, so a bootstrap file can reference assets
// sitting next to it regardless of the process's working directory.
func resolveFilePaths(rf *RuleFile, configPath string) {
	for i := range rf.Rules {
		steps := rf.Rules[i].Steps
		for j := range steps {
			if steps[j].FilePath != "" {
				steps[j].FilePath = msUtils.ResolveMockFilePath(configPath, steps[j].FilePath)
			}
			if pt := steps[j].PassThrough; pt != nil {
				resolveTransformFilePath(pt.TransformRequest, configPath)
				resolveTransformFilePath(pt.TransformResponse, configPath)
			}
		}
	}
}

func resolveTransformFilePath(t *TransformDef, configPath string) {
	if t == nil || t.ReplaceBodyFromFile == "" {
		return
	}
	t.ReplaceBodyFromFile = msUtils.ResolveMockFilePath(configPath, t.ReplaceBodyFromFile)
}
