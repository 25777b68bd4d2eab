package config

import (
	"fmt"
	"strings"
)

// ProjectType selects the kind of calculation and its post-processing.
type ProjectType string

const (
	ProjectTypeSinglePoint          ProjectType = "single_point"
	ProjectTypeMD                   ProjectType = "md"
	ProjectTypeGeometryOptimization ProjectType = "geometry_optimization"
)

// ProjectTypes lists every supported project type.
func ProjectTypes() []ProjectType {
	return []ProjectType{ProjectTypeSinglePoint, ProjectTypeMD, ProjectTypeGeometryOptimization}
}

// ParseProjectType accepts the canonical names plus "relax" as an alias for
// geometry optimisation.
func ParseProjectType(s string) (ProjectType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single_point", "single-point", "singlepoint", "":
		return ProjectTypeSinglePoint, nil
	case "md":
		return ProjectTypeMD, nil
	case "geometry_optimization", "geometry-optimization", "relax":
		return ProjectTypeGeometryOptimization, nil
	default:
		return "", fmt.Errorf("unknown project type %q", s)
	}
}

// UnmarshalText lets mapstructure and yaml decode aliases.
func (p *ProjectType) UnmarshalText(text []byte) error {
	parsed, err := ParseProjectType(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p ProjectType) String() string {
	return string(p)
}
