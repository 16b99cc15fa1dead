package server

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/minehold/minehold/internal/config"
	"github.com/minehold/minehold/internal/store"
)

// Launcher builds the exec.Cmd for one server definition. Instances take it
// as a hook so tests can substitute arbitrary processes.
type Launcher func(def *store.Definition) (*exec.Cmd, error)

// NewLauncher returns the production launcher: a java invocation with heap
// flags, extra JVM args and either a -jar or an @argsfile per the kind.
func NewLauncher(kind *config.KindConfig, defaultJava string) Launcher {
	return func(def *store.Definition) (*exec.Cmd, error) {
		dir, err := filepath.Abs(def.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve server directory: %w", err)
		}

		java := def.JavaPath
		if java == "" {
			java = defaultJava
		}

		heapMin := def.HeapMinMB
		if heapMin <= 0 {
			heapMin = 512
		}
		heapMax := def.HeapMaxMB
		if heapMax <= 0 {
			heapMax = 2048
		}

		args := []string{
			fmt.Sprintf("-Xms%dM", heapMin),
			fmt.Sprintf("-Xmx%dM", heapMax),
		}
		args = append(args, strings.Fields(def.ExtraArgs)...)

		if kind.ArgsFile {
			argsFile, err := findArgsFile(dir)
			if err != nil {
				return nil, err
			}
			args = append(args, "@"+argsFile)
		} else {
			jar := def.Jar
			if jar == "" {
				jar = kind.DefaultJar
			}
			if _, err := os.Stat(filepath.Join(dir, jar)); err != nil {
				if os.IsNotExist(err) {
					return nil, fmt.Errorf("server jar not found at %s", filepath.Join(dir, jar))
				}
				return nil, fmt.Errorf("failed to access server jar: %w", err)
			}
			args = append(args, "-jar", jar)
		}

		args = append(args, "nogui")

		cmd := exec.Command(java, args...)
		cmd.Dir = dir
		return cmd, nil
	}
}

// findArgsFile locates the launcher-generated JVM args file that Forge and
// NeoForge installs place under libraries/.
func findArgsFile(dir string) (string, error) {
	librariesDir := filepath.Join(dir, "libraries")
	if _, err := os.Stat(librariesDir); os.IsNotExist(err) {
		return "", fmt.Errorf("libraries directory not found in %s", dir)
	}

	target := "unix_args.txt"
	if runtime.GOOS == "windows" {
		target = "win_args.txt"
	}

	var found string
	err := filepath.WalkDir(librariesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == target {
			found = path
			return io.EOF // stop the walk
		}
		return nil
	})
	if err != nil && err != io.EOF {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("args file %s not found under %s", target, librariesDir)
	}
	return found, nil
}
