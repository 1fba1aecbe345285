package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// ProjectConfigName 项目级配置文件名
// ProjectConfigName is the project-level config file written by InitProjectConfig.
const ProjectConfigName = "assistant.config.json"

// InitProjectConfig 在 dir 下写入默认配置模板；已存在则保留用户配置
// InitProjectConfig writes the default config to dir/assistant.config.json.
// An existing file is left untouched and reported through created=false.
func InitProjectConfig(dir string) (path string, created bool, err error) {
	path = filepath.Join(dir, ProjectConfigName)
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return path, false, errors.Newf("project config path is a directory: %s", path)
		}
		return path, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return path, false, errors.Wrap(err, "stat project config")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return path, false, errors.Wrapf(err, "mkdir %s", dir)
	}

	cfg := Default()
	cfg.Provider.APIKey = ""
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return path, false, errors.Wrap(err, "marshal default config")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return path, false, errors.Wrap(err, "write project config")
	}
	return path, true, nil
}
