package entity

import (
	"os"
	"path/filepath"
)

// Paths are the directories an entity writes to.
type Paths struct {
	Root      string
	DebugLogs string
	DataBase  string
	CSV       string
	HTML      string
}

func NewPaths(home, htmlRoot, name string, debug bool) Paths {
	root := filepath.Join(home, name)
	html := filepath.Join(htmlRoot, name)
	if debug {
		root = filepath.Join(root, "Debug")
		html = filepath.Join(html, "Debug")
	}
	return Paths{
		Root:      root,
		DebugLogs: filepath.Join(root, "Debug_Logs"),
		DataBase:  filepath.Join(root, "DataBase"),
		CSV:       filepath.Join(root, "csv"),
		HTML:      html,
	}
}

// Ensure creates every directory that does not exist yet.
func (p Paths) Ensure() error {
	for _, dir := range []string{p.Root, p.DebugLogs, p.DataBase, p.CSV, p.HTML} {
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return err
		}
	}
	return nil
}
