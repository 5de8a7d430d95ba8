package descriptor

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDescriptorPath = "component"
	DefaultModulesPath    = "modules"
	DefaultLibsPath       = "libs"
	DefaultJarPath        = "libs"
	DefaultContainerType  = "container"
	DefaultContainerExt   = "zip"
)

// ParseMetadata decodes the metadata block of a descriptor document.
func ParseMetadata(data []byte) (Metadata, error) {
	var doc struct {
		Metadata Metadata `yaml:"metadata"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Metadata{}, fmt.Errorf("decode descriptor metadata: %w", err)
	}
	return doc.Metadata, nil
}

// Parse decodes a descriptor document, applies defaults and validates it.
// Unknown keys are rejected.
func Parse(data []byte) (*Component, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var comp Component
	if err := decoder.Decode(&comp); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	Normalize(&comp)
	if err := Validate(&comp); err != nil {
		return nil, err
	}
	return &comp, nil
}

// Normalize fills in default path prefixes and item defaults.
func Normalize(comp *Component) {
	if comp.DescriptorPath == "" {
		comp.DescriptorPath = DefaultDescriptorPath
	}
	if comp.ModulesPath == "" {
		comp.ModulesPath = DefaultModulesPath
	}
	if comp.LibsPath == "" {
		comp.LibsPath = DefaultLibsPath
	}
	comp.DescriptorPath = cleanRel(comp.DescriptorPath)
	comp.ModulesPath = cleanRel(comp.ModulesPath)
	comp.ContainersPath = cleanRel(comp.ContainersPath)
	comp.LibsPath = cleanRel(comp.LibsPath)

	for i := range comp.Modules {
		mod := &comp.Modules[i]
		if mod.TargetPath == "" {
			mod.TargetPath = mod.Name
		}
		if mod.JarPath == "" {
			mod.JarPath = DefaultJarPath
		}
		if mod.Dependency.Group == "" {
			mod.Dependency.Group = comp.Metadata.Group
		}
		if mod.Dependency.Module == "" {
			mod.Dependency.Module = mod.Name
		}
		mod.ContentType = mod.ContentType.OrDefault()
		for j := range mod.Packages {
			if mod.Packages[j].Name == "" {
				mod.Packages[j].Name = mod.Dependency.Module
			}
			if mod.Packages[j].Type == "" {
				mod.Packages[j].Type = "package"
			}
			if mod.Packages[j].Ext == "" {
				mod.Packages[j].Ext = "zip"
			}
		}
	}
	for i := range comp.FileContainers {
		fc := &comp.FileContainers[i]
		if fc.TargetPath == "" {
			fc.TargetPath = fc.Name
		}
		if fc.ItemType == "" {
			fc.ItemType = DefaultContainerType
		}
		if fc.Ext == "" {
			fc.Ext = DefaultContainerExt
		}
		fc.ContentType = fc.ContentType.OrDefault()
	}
	for i := range comp.Libs {
		lib := &comp.Libs[i]
		if lib.TargetName == "" {
			lib.TargetName = fmt.Sprintf("%s_%s_%s", lib.Dependency.Group, lib.Dependency.Module, lib.Dependency.Version)
		}
		lib.ContentType = Immutable
	}
	for i := range comp.Directories {
		comp.Directories[i].ContentType = comp.Directories[i].ContentType.OrDefault()
	}
	for i := range comp.FileItems {
		comp.FileItems[i].ContentType = comp.FileItems[i].ContentType.OrDefault()
	}
}

// Validate checks required fields and rejects target paths escaping the
// install root.
func Validate(comp *Component) error {
	if strings.TrimSpace(comp.Metadata.Module) == "" {
		return fmt.Errorf("metadata.module is required")
	}
	for _, p := range []struct{ name, value string }{
		{"descriptor_path", comp.DescriptorPath},
		{"modules_path", comp.ModulesPath},
		{"containers_path", comp.ContainersPath},
		{"libs_path", comp.LibsPath},
	} {
		if escapes(p.value) {
			return fmt.Errorf("%s %q escapes the install root", p.name, p.value)
		}
	}
	for i, mod := range comp.Modules {
		if strings.TrimSpace(mod.Name) == "" {
			return fmt.Errorf("modules[%d].name is required", i)
		}
		if strings.TrimSpace(mod.Dependency.Version) == "" {
			return fmt.Errorf("modules[%d].dependency.version is required", i)
		}
		if escapes(mod.TargetPath) || escapes(mod.JarPath) {
			return fmt.Errorf("modules[%d] target escapes the install root", i)
		}
	}
	for i, fc := range comp.FileContainers {
		if strings.TrimSpace(fc.Name) == "" {
			return fmt.Errorf("file_containers[%d].name is required", i)
		}
		if escapes(fc.TargetPath) {
			return fmt.Errorf("file_containers[%d].target_path %q escapes the install root", i, fc.TargetPath)
		}
	}
	for i, lib := range comp.Libs {
		if lib.Dependency.Module == "" || lib.Dependency.Version == "" {
			return fmt.Errorf("libs[%d].dependency requires module and version", i)
		}
	}
	for i, dir := range comp.Directories {
		if strings.TrimSpace(dir.TargetPath) == "" || escapes(dir.TargetPath) {
			return fmt.Errorf("directories[%d].target_path %q is invalid", i, dir.TargetPath)
		}
	}
	for i, link := range comp.Links {
		if strings.TrimSpace(link.Name) == "" || strings.TrimSpace(link.Target) == "" {
			return fmt.Errorf("links[%d] requires name and target", i)
		}
		if escapes(link.Name) {
			return fmt.Errorf("links[%d].name %q escapes the install root", i, link.Name)
		}
	}
	for i, prop := range comp.Properties {
		if strings.TrimSpace(prop.Key) == "" {
			return fmt.Errorf("properties[%d].key is required", i)
		}
	}
	for i, item := range comp.FileItems {
		if strings.TrimSpace(item.Name) == "" {
			return fmt.Errorf("file_items[%d].name is required", i)
		}
		if escapes(item.TargetPath) {
			return fmt.Errorf("file_items[%d].target_path %q escapes the install root", i, item.TargetPath)
		}
	}
	return nil
}

// ModuleDir is the root-relative install directory of a module.
func (c *Component) ModuleDir(mod Module) string {
	return JoinRel(c.ModulesPath, mod.TargetPath)
}

// ContainerDir is the root-relative install directory of a file container.
func (c *Component) ContainerDir(fc FileContainer) string {
	return JoinRel(c.ContainersPath, fc.TargetPath)
}

// DeclaredPaths lists every root-relative path the component owns: the
// descriptor directory, the library directory, every module, container and
// directory item, and every link name.
func (c *Component) DeclaredPaths() []string {
	paths := []string{c.DescriptorPath}
	if len(c.Libs) > 0 {
		paths = append(paths, c.LibsPath)
	}
	for _, mod := range c.Modules {
		paths = append(paths, c.ModuleDir(mod))
	}
	for _, fc := range c.FileContainers {
		paths = append(paths, c.ContainerDir(fc))
	}
	for _, dir := range c.Directories {
		paths = append(paths, cleanRel(dir.TargetPath))
	}
	for _, link := range c.Links {
		paths = append(paths, cleanRel(link.Name))
	}
	return paths
}

// JoinRel joins root-relative slash paths, ignoring empty elements.
func JoinRel(elems ...string) string {
	parts := make([]string, 0, len(elems))
	for _, e := range elems {
		if e = cleanRel(e); e != "" {
			parts = append(parts, e)
		}
	}
	return path.Join(parts...)
}

func cleanRel(value string) string {
	value = strings.TrimSpace(strings.ReplaceAll(value, "\\", "/"))
	if value == "" {
		return ""
	}
	cleaned := path.Clean(strings.TrimLeft(value, "/"))
	if cleaned == "." {
		return ""
	}
	return cleaned
}

func escapes(value string) bool {
	cleaned := cleanRel(value)
	return cleaned == ".." || strings.HasPrefix(cleaned, "../")
}
