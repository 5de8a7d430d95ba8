package descriptor

import "testing"

const sampleDescriptor = `
metadata:
  format_version: "1.0"
  group: com.example
  module: shop
  version: 1.2.0
excludes: ["**/*.log"]
preserve:
  includes: ["**/local.properties"]
modules:
  - name: x
    dependency: {version: 2.0.+}
    content_type: IMMUTABLE
    packages:
      - classifier: linux
file_containers:
  - name: y
    target_path: data/y
    content_type: data
    updatable: false
libs:
  - dependency: {group: org.lib, module: util, version: 1.0}
directories:
  - target_path: logs
links:
  - name: current
    target: modules/x
`

func TestParseAppliesDefaults(t *testing.T) {
	comp, err := Parse([]byte(sampleDescriptor))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if comp.DescriptorPath != DefaultDescriptorPath || comp.ModulesPath != "modules" || comp.LibsPath != "libs" {
		t.Fatalf("unexpected path defaults: %+v", comp)
	}
	mod := comp.Modules[0]
	if mod.TargetPath != "x" || mod.Dependency.Group != "com.example" || mod.Dependency.Module != "x" {
		t.Fatalf("unexpected module defaults: %+v", mod)
	}
	if mod.Packages[0].Name != "x" || mod.Packages[0].Ext != "zip" || mod.Packages[0].Type != "package" {
		t.Fatalf("unexpected package defaults: %+v", mod.Packages[0])
	}
	fc := comp.FileContainers[0]
	if fc.ContentType != Data || fc.IsUpdatable() || fc.ItemType != DefaultContainerType {
		t.Fatalf("unexpected container: %+v", fc)
	}
	if comp.Libs[0].TargetName != "org.lib_util_1.0" {
		t.Fatalf("unexpected lib target name: %q", comp.Libs[0].TargetName)
	}
	if comp.Directories[0].ContentType != Unspecified {
		t.Fatalf("directory content type = %q", comp.Directories[0].ContentType)
	}
}

func TestDeclaredPaths(t *testing.T) {
	comp, err := Parse([]byte(sampleDescriptor))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	got := comp.DeclaredPaths()
	want := []string{"component", "libs", "modules/x", "data/y", "logs", "current"}
	if len(got) != len(want) {
		t.Fatalf("DeclaredPaths() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("DeclaredPaths()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseRejectsUnknownFieldsAndEscapes(t *testing.T) {
	if _, err := Parse([]byte("metadata: {module: m}\nunknown: 1\n")); err == nil {
		t.Fatalf("expected unknown field error")
	}
	if _, err := Parse([]byte("metadata: {module: m}\ndirectories:\n  - target_path: ../etc\n")); err == nil {
		t.Fatalf("expected escape error")
	}
	if _, err := Parse([]byte("metadata: {module: m}\nfile_containers:\n  - name: c\n    content_type: bogus\n")); err == nil {
		t.Fatalf("expected content type error")
	}
}

func TestParseMetadataIgnoresUnknownSections(t *testing.T) {
	meta, err := ParseMetadata([]byte(sampleDescriptor + "future_section: {a: 1}\n"))
	if err != nil {
		t.Fatalf("ParseMetadata failed: %v", err)
	}
	if meta.FormatVersion != FormatVersion || meta.Module != "shop" || meta.Version != "1.2.0" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestParseContentType(t *testing.T) {
	cases := map[string]ContentType{
		"":              Unspecified,
		"immutable":     Immutable,
		"STATIC":        Immutable,
		"Data":          Data,
		"configuration": Configuration,
	}
	for in, want := range cases {
		got, err := ParseContentType(in)
		if err != nil || got != want {
			t.Fatalf("ParseContentType(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if !Unspecified.NeedsBackup() || !Data.NeedsBackup() || Immutable.NeedsBackup() || Configuration.NeedsBackup() {
		t.Fatalf("unexpected NeedsBackup results")
	}
}
