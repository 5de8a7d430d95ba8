package resolve

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/pirakansa/compinst/internal/transport"
)

const mavenMetadataFile = "maven-metadata.xml"

func mavenModuleURL(base string, dep Dependency) string {
	return transport.JoinURL(base, strings.ReplaceAll(dep.Group, ".", "/")+"/"+dep.Module)
}

// ParseMavenVersions returns the versioning/versions/version list of a
// module metadata document in document order.
func ParseMavenVersions(metadata []byte) ([]string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(metadata); err != nil {
		return nil, fmt.Errorf("parse %s: %w", mavenMetadataFile, err)
	}
	var versions []string
	for _, el := range doc.FindElements("//versioning/versions/version") {
		if v := strings.TrimSpace(el.Text()); v != "" {
			versions = append(versions, v)
		}
	}
	return versions, nil
}

// ParseSnapshotStem resolves a snapshot version to its unique artifact stem
// "<module>-<base>-<timestamp>-<buildNumber>". ok is false when the document
// carries no snapshot block.
func ParseSnapshotStem(metadata []byte, module, version string) (stem string, ok bool, err error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(metadata); err != nil {
		return "", false, fmt.Errorf("parse snapshot %s: %w", mavenMetadataFile, err)
	}
	timestamp := doc.FindElement("//versioning/snapshot/timestamp")
	buildNumber := doc.FindElement("//versioning/snapshot/buildNumber")
	if timestamp == nil || buildNumber == nil {
		return "", false, nil
	}
	ts := strings.TrimSpace(timestamp.Text())
	bn := strings.TrimSpace(buildNumber.Text())
	if ts == "" || bn == "" {
		return "", false, nil
	}
	base := strings.TrimSuffix(version, SnapshotSuffix)
	return fmt.Sprintf("%s-%s-%s-%s", module, base, ts, bn), true, nil
}
