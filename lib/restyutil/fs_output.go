package restyutil

import (
	"log/slog"
	"os"
	"path/filepath"
)

// FilesystemOutput writes each http exchange to its own file in a directory,
// it implements telemetry.MessageOutput.
type FilesystemOutput struct {
	directory string
	prefix    string
}

// NewFilesystemOutput creates the directory if needed, every file written
// is named `<prefix><id>.txt`.
func NewFilesystemOutput(dir, prefix string) (FilesystemOutput, error) {
	err := os.MkdirAll(dir, 0777)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir, prefix: prefix}, nil
}

func (o FilesystemOutput) Write(id string, contents string) {
	path := filepath.Join(o.directory, o.prefix+id+".txt")
	err := os.WriteFile(path, []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
}
