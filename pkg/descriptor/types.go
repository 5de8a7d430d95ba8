package descriptor

import "fmt"

// FormatVersion is the descriptor format this engine understands.
const FormatVersion = "1.0"

// Metadata identifies the descriptor format and the component coordinates.
type Metadata struct {
	FormatVersion string `yaml:"format_version"`
	Group         string `yaml:"group"`
	Module        string `yaml:"module"`
	Version       string `yaml:"version"`
}

// Component is the parsed component descriptor.
type Component struct {
	Metadata Metadata `yaml:"metadata"`

	DescriptorPath string `yaml:"descriptor_path"`
	ModulesPath    string `yaml:"modules_path"`
	ContainersPath string `yaml:"containers_path"`
	LibsPath       string `yaml:"libs_path"`

	Excludes []string   `yaml:"excludes"`
	Preserve PatternSet `yaml:"preserve"`

	Modules        []Module        `yaml:"modules"`
	FileContainers []FileContainer `yaml:"file_containers"`
	Libs           []Library       `yaml:"libs"`
	Directories    []DirectoryItem `yaml:"directories"`
	Links          []LinkItem      `yaml:"links"`
	Properties     []PropertyItem  `yaml:"properties"`
	FileItems      []FileItem      `yaml:"file_items"`
}

// PatternSet is an Ant-style include/exclude pair.
type PatternSet struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// IsEmpty is true when no pattern is configured.
func (p PatternSet) IsEmpty() bool {
	return len(p.Includes) == 0 && len(p.Excludes) == 0
}

// Item carries the attributes every deployable entry shares.
type Item struct {
	Classifier  string      `yaml:"classifier"`
	Types       []string    `yaml:"types"`
	Updatable   *bool       `yaml:"updatable"`
	ContentType ContentType `yaml:"content_type"`
}

// IsUpdatable defaults to true when the descriptor does not say otherwise.
func (i Item) IsUpdatable() bool {
	return i.Updatable == nil || *i.Updatable
}

// Dependency is a group:module:version coordinate in a descriptor.
type Dependency struct {
	Group   string `yaml:"group"`
	Module  string `yaml:"module"`
	Version string `yaml:"version"`
}

func (d Dependency) String() string {
	return fmt.Sprintf("%s:%s:%s", d.Group, d.Module, d.Version)
}

// Artifact names one published file of a module or component.
type Artifact struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Ext        string `yaml:"ext"`
	Classifier string `yaml:"classifier"`
}

// Module is installed below <modules_path>/<target_path>.
type Module struct {
	Item               `yaml:",inline"`
	Name               string     `yaml:"name"`
	TargetPath         string     `yaml:"target_path"`
	Dependency         Dependency `yaml:"dependency"`
	Packages           []Artifact `yaml:"packages"`
	Jars               []string   `yaml:"jars"`
	JarPath            string     `yaml:"jar_path"`
	DescriptorFile     *Artifact  `yaml:"descriptor_file"`
	DescriptorPath     string     `yaml:"descriptor_path"`
	TargetIncluded     bool       `yaml:"target_included"`
	ExcludesFromUpdate []string   `yaml:"excludes_from_update"`
	Preserve           PatternSet `yaml:"preserve"`
}

// FileContainer is an archive published with the component itself.
type FileContainer struct {
	Item               `yaml:",inline"`
	Name               string     `yaml:"name"`
	TargetPath         string     `yaml:"target_path"`
	ItemType           string     `yaml:"item_type"`
	Ext                string     `yaml:"ext"`
	TargetIncluded     bool       `yaml:"target_included"`
	ExcludesFromUpdate []string   `yaml:"excludes_from_update"`
	Preserve           PatternSet `yaml:"preserve"`
}

// Library is a single jar copied into <libs_path> as <target_name>.jar.
type Library struct {
	Item       `yaml:",inline"`
	Dependency Dependency `yaml:"dependency"`
	TargetName string     `yaml:"target_name"`
}

// DirectoryItem declares an (initially empty) directory and its content type.
type DirectoryItem struct {
	Item       `yaml:",inline"`
	TargetPath string `yaml:"target_path"`
}

// LinkItem declares a symbolic link Name -> Target, both relative to the
// install root unless Target is absolute.
type LinkItem struct {
	Item   `yaml:",inline"`
	Name   string `yaml:"name"`
	Target string `yaml:"target"`
}

// PropertyItem overrides one key in every properties file matching Pattern.
type PropertyItem struct {
	Item    `yaml:",inline"`
	Key     string `yaml:"key"`
	Value   string `yaml:"value"`
	Pattern string `yaml:"pattern"`
}

// FileItem is a loose file published with the component. It is written to
// <target_path>/<name>.<extension> and overrides packaged content there.
type FileItem struct {
	Item              `yaml:",inline"`
	Name              string `yaml:"name"`
	Extension         string `yaml:"extension"`
	TargetPath        string `yaml:"target_path"`
	ExcludeFromUpdate bool   `yaml:"exclude_from_update"`
}

// FileName is <name>.<extension>, or just the name without an extension.
func (f FileItem) FileName() string {
	if f.Extension == "" {
		return f.Name
	}
	return f.Name + "." + f.Extension
}
