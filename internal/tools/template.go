package tools

import (
	"path/filepath"
	"runtime"

	"github.com/valyala/fasttemplate"
)

const (
	Exiftool = "exiftool"

	// Placeholders available to command templates.
	SourceVar      = "source"
	SourceNameVar  = "source_name"
	DestinationVar = "destination"
	DateFormatVar  = "date_format"
	PathVar        = "path"
)

// CommandTemplate describes how to invoke an external tool. Args may
// contain {placeholders}; unknown placeholders are passed through untouched
// so tool-specific brace syntax survives expansion.
type CommandTemplate struct {
	Tool     string   `yaml:"tool"`
	Args     []string `yaml:"args"`
	MoveArgs []string `yaml:"move_args"`
}

func (tmpl CommandTemplate) IsZero() bool { return tmpl.Tool == "" }

// Expand substitutes vars in to Args (and MoveArgs, when move is set).
func (tmpl CommandTemplate) Expand(vars map[string]string, move bool) []string {
	values := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		values[k] = v
	}

	args := make([]string, 0, len(tmpl.Args)+len(tmpl.MoveArgs))
	for _, arg := range tmpl.Args {
		args = append(args, fasttemplate.ExecuteStringStd(arg, "{", "}", values))
	}
	if move {
		for _, arg := range tmpl.MoveArgs {
			args = append(args, fasttemplate.ExecuteStringStd(arg, "{", "}", values))
		}
	}

	return args
}

// DefaultCopyTemplate copies the source folder in to the destination,
// nesting it as a child named after the source.
func DefaultCopyTemplate() CommandTemplate {
	if runtime.GOOS == "windows" {
		return CommandTemplate{
			Tool: "xcopy",
			Args: []string{"{source}", filepath.Join("{destination}", "{source_name}") + `\`, "/E", "/I", "/Y"},
		}
	}

	return CommandTemplate{Tool: "cp", Args: []string{"-R", "{source}", "{destination}"}}
}

// DefaultOrganizeTemplate moves media in to date-named folders beneath the
// destination using exiftool. The modification date is used when no
// capture date is present since later assignments take priority.
func DefaultOrganizeTemplate() CommandTemplate {
	return CommandTemplate{
		Tool: Exiftool,
		Args: []string{
			"-r",
			"-progress",
			"-Directory<FileModifyDate",
			"-Directory<DateTimeOriginal",
			"-d", "{destination}/{date_format}",
			"{source}",
		},
	}
}

// DefaultDateFormat is the strftime pattern used to name organised folders.
const DefaultDateFormat = "%Y/%m"
