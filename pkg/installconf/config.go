package installconf

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

const (
	DefaultConfigVersion = 1
	DefaultConfigFile    = "compinst.yaml"
	DefaultIvyPattern    = "[organisation]/[module]/[revision]/[ext]s/[artifact]-[type](-[classifier])-[revision].[ext]"

	KindIvy   = "ivy"
	KindMaven = "maven"
)

func NormalizeInstallConfig(cfg *InstallConfig) {
	if cfg.Version == 0 {
		cfg.Version = DefaultConfigVersion
	}
	if cfg.Jobs <= 0 {
		cfg.Jobs = 1
	}
	if cfg.Hooks == nil {
		cfg.Hooks = map[string]HookDef{}
	}
	cfg.InstallDir = os.ExpandEnv(strings.TrimSpace(cfg.InstallDir))
	if strings.TrimSpace(cfg.AdminDir) == "" {
		cfg.AdminDir = filepath.Join(xdg.CacheHome, "compinst")
	}
	cfg.AdminDir = os.ExpandEnv(cfg.AdminDir)
	if strings.TrimSpace(cfg.BackupDir) == "" && cfg.InstallDir != "" {
		cfg.BackupDir = filepath.Join(cfg.InstallDir, ".backup")
	}
	cfg.BackupDir = os.ExpandEnv(cfg.BackupDir)
	cfg.Environment = splitEnvironment(cfg.Environment)

	for i := range cfg.Repositories {
		repo := &cfg.Repositories[i]
		repo.Kind = strings.ToLower(strings.TrimSpace(repo.Kind))
		if repo.Kind == KindIvy && strings.TrimSpace(repo.Pattern) == "" {
			repo.Pattern = DefaultIvyPattern
		}
		if repo.Name == "" {
			repo.Name = fmt.Sprintf("repository%d", i)
		}
		repo.Username = os.ExpandEnv(repo.Username)
		repo.Password = os.ExpandEnv(repo.Password)
	}
}

// splitEnvironment accepts both a YAML list and a single comma separated
// value as provided through environment variables.
func splitEnvironment(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func IsRemoteConfigLocation(value string) bool {
	parsed, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

// ValidateInstallConfig checks required fields and references. Repository
// kinds are left to the resolver, which reports unknown ones.
func ValidateInstallConfig(cfg *InstallConfig) error {
	if cfg.InstallDir == "" {
		return fmt.Errorf("install_dir is required")
	}
	if len(cfg.Repositories) == 0 {
		return fmt.Errorf("at least one repository is required")
	}
	for i, repo := range cfg.Repositories {
		if strings.TrimSpace(repo.URL) == "" {
			return fmt.Errorf("repositories[%d].url is required", i)
		}
	}
	for i, comp := range cfg.Components {
		if _, _, _, err := SplitDependency(comp.Dependency); err != nil {
			return fmt.Errorf("components[%d]: %w", i, err)
		}
		for j, item := range comp.FileItems {
			if strings.TrimSpace(item.File) == "" {
				return fmt.Errorf("components[%d].file_items[%d].file is required", i, j)
			}
			if strings.TrimSpace(item.TargetPath) == "" {
				return fmt.Errorf("components[%d].file_items[%d].target_path is required", i, j)
			}
		}
		for _, name := range append(append([]string{}, comp.PreInstall...), comp.PostInstall...) {
			if _, ok := cfg.Hooks[name]; !ok {
				return fmt.Errorf("components[%d] references unknown hook %q", i, name)
			}
		}
	}
	for i, f := range cfg.Filters {
		if len(f.Includes) == 0 {
			return fmt.Errorf("filters[%d].includes is required", i)
		}
		for j, edit := range f.XML {
			if strings.TrimSpace(edit.Path) == "" {
				return fmt.Errorf("filters[%d].xml[%d].path is required", i, j)
			}
		}
	}
	for name, hook := range cfg.Hooks {
		if hook.Run == "" && len(hook.DependsOn) == 0 {
			return fmt.Errorf("hook %q must have run or depends_on", name)
		}
	}
	return nil
}

// SplitDependency splits a "group:module:version" coordinate.
func SplitDependency(value string) (group, module, version string, err error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("dependency %q must be group:module:version", value)
	}
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return "", "", "", fmt.Errorf("dependency %q must be group:module:version", value)
		}
	}
	return parts[0], parts[1], parts[2], nil
}

// ComponentRoot is the absolute install root of one component.
func (cfg *InstallConfig) ComponentRoot(comp Component) string {
	if filepath.IsAbs(comp.Path) {
		return filepath.Clean(comp.Path)
	}
	root := filepath.Join(cfg.InstallDir, comp.Path)
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return root
}
