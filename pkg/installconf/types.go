package installconf

// InstallConfig is the installation configuration in compinst.yaml.
type InstallConfig struct {
	Version      int                `yaml:"version"`
	InstallDir   string             `yaml:"install_dir"`
	AdminDir     string             `yaml:"admin_dir"`
	BackupDir    string             `yaml:"backup_dir"`
	OS           string             `yaml:"os"`
	Environment  []string           `yaml:"environment"`
	Jobs         int                `yaml:"jobs"`
	Proxy        Proxy              `yaml:"proxy"`
	Repositories []Repository       `yaml:"repositories"`
	Components   []Component        `yaml:"components"`
	Filters      []Filter           `yaml:"filters"`
	Hooks        map[string]HookDef `yaml:"hooks"`
}

// Proxy holds host:port proxies per URL scheme.
type Proxy struct {
	HTTP  string `yaml:"http"`
	HTTPS string `yaml:"https"`
}

// Repository is one artifact repository searched by the resolver.
type Repository struct {
	Name            string            `yaml:"name"`
	Kind            string            `yaml:"kind"`
	URL             string            `yaml:"url"`
	Pattern         string            `yaml:"pattern"`
	Username        string            `yaml:"username"`
	Password        string            `yaml:"password"`
	Headers         map[string]string `yaml:"headers"`
	VerifyChecksums bool              `yaml:"verify_checksums"`
}

// Component selects one component to install below InstallDir/Path.
type Component struct {
	Dependency  string          `yaml:"dependency"`
	Path        string          `yaml:"path"`
	PreInstall  []string        `yaml:"pre_install"`
	PostInstall []string        `yaml:"post_install"`
	FileItems   []LocalFileItem `yaml:"file_items"`
}

// LocalFileItem is a file from the local machine that overrides packaged
// content. TargetPath is the destination directory relative to the
// component root; the file keeps its base name.
type LocalFileItem struct {
	File              string   `yaml:"file"`
	TargetPath        string   `yaml:"target_path"`
	Classifier        string   `yaml:"classifier"`
	Types             []string `yaml:"types"`
	ContentType       string   `yaml:"content_type"`
	Updatable         *bool    `yaml:"updatable"`
	ExcludeFromUpdate bool     `yaml:"exclude_from_update"`
}

// Filter adapts the content of matching files while they are installed.
type Filter struct {
	Name         string            `yaml:"name"`
	Includes     []string          `yaml:"includes"`
	Excludes     []string          `yaml:"excludes"`
	Placeholders map[string]string `yaml:"placeholders"`
	Properties   map[string]string `yaml:"properties"`
	XML          []XMLEdit         `yaml:"xml"`
	Replace      []Replacement     `yaml:"replace"`
}

// XMLEdit sets the text of the elements at Path, or Attribute when given.
type XMLEdit struct {
	Path      string `yaml:"path"`
	Attribute string `yaml:"attribute"`
	Value     string `yaml:"value"`
}

// Replacement is a literal text replacement.
type Replacement struct {
	Old string `yaml:"old"`
	New string `yaml:"new"`
}

// HookDef defines one runnable hook.
type HookDef struct {
	Run       string            `yaml:"run"`
	Desc      string            `yaml:"desc"`
	Env       map[string]string `yaml:"env"`
	CWD       string            `yaml:"cwd"`
	DependsOn []string          `yaml:"depends_on"`
}
