// Package extensions lists editor extensions installed on the machine so the
// diagnosis probes can spot competing Rich Presence integrations.
//
// Three manifest layouts are recognized inside each extensions directory:
//
//   - VS Code style <dir>/<ext>/package.json (ID is publisher.name)
//   - unpacked JetBrains plugins <dir>/<plugin>/META-INF/plugin.xml (ID is <id>)
//   - installed JetBrains plugins <dir>/<plugin>/lib/*.jar with
//     META-INF/plugin.xml inside one of the jars
//
// Directories may contain glob patterns, which are expanded with doublestar.
package extensions

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

const (
	vscodeManifest    = "*/package.json"
	jetbrainsManifest = "*/META-INF/plugin.xml"
	jetbrainsJars     = "*/lib/*.jar"
	pluginXML         = "META-INF/plugin.xml"
)

// errNoPluginXML marks a jar without a plugin descriptor. Most jars in a
// plugin's lib directory are dependencies.
var errNoPluginXML = errors.New("no plugin descriptor")

// Registry reads extension manifests from Dirs on Fs.
type Registry struct {
	Fs   afero.Fs
	Dirs []string
	Log  *slog.Logger
}

// DefaultDirs returns the extension directories of VS Code and its forks
// under home, followed by the JetBrains plugin roots for the running OS.
// The JetBrains entries are glob patterns over every installed IDE.
func DefaultDirs(home string) []string {
	return defaultDirs(home, runtime.GOOS, os.Getenv("APPDATA"))
}

func defaultDirs(home, goos, appData string) []string {
	var dirs []string
	for _, d := range []string{".vscode", ".vscode-insiders", ".vscode-oss", ".cursor", ".windsurf"} {
		dirs = append(dirs, filepath.Join(home, d, "extensions"))
	}

	switch goos {
	case "darwin":
		dirs = append(dirs, filepath.Join(home, "Library", "Application Support", "JetBrains", "*", "plugins"))
	case "windows":
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		dirs = append(dirs, filepath.Join(appData, "JetBrains", "*", "plugins"))
	default:
		// Since 2020.1 plugins sit directly in the IDE's data directory.
		dirs = append(dirs, filepath.Join(home, ".local", "share", "JetBrains", "*"))
	}
	return dirs
}

// IDs returns the sorted, de-duplicated IDs of every readable manifest.
// Missing directories are skipped.
func (r Registry) IDs() ([]string, error) {
	fsys := r.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	log := r.Log
	if log == nil {
		log = slog.Default().With("component", "extensions")
	}

	dirs, err := expandDirs(fsys, r.Dirs)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, dir := range dirs {
		ok, err := afero.DirExists(fsys, dir)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", dir, err)
		}
		if !ok {
			continue
		}

		root := afero.NewIOFS(afero.NewBasePathFs(fsys, dir))
		found, err := scan(root, log.With("dir", dir))
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
		ids = append(ids, found...)
	}

	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// expandDirs replaces every entry containing glob meta characters with the
// directories it matches. Plain entries are kept as they are.
func expandDirs(fsys afero.Fs, dirs []string) ([]string, error) {
	var out []string
	for _, dir := range dirs {
		if !strings.ContainsAny(dir, "*?[{") {
			out = append(out, dir)
			continue
		}

		base, pattern := doublestar.SplitPattern(filepath.ToSlash(dir))
		base = filepath.FromSlash(base)
		ok, err := afero.DirExists(fsys, base)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", base, err)
		}
		if !ok {
			continue
		}

		matches, err := doublestar.Glob(afero.NewIOFS(afero.NewBasePathFs(fsys, base)), pattern)
		if err != nil {
			return nil, fmt.Errorf("expanding %s: %w", dir, err)
		}
		for _, m := range matches {
			out = append(out, filepath.Join(base, filepath.FromSlash(m)))
		}
	}
	return out, nil
}

func scan(root fs.FS, log *slog.Logger) ([]string, error) {
	var ids []string

	manifests, err := doublestar.Glob(root, vscodeManifest)
	if err != nil {
		return nil, err
	}
	for _, m := range manifests {
		id, err := readPackageJSON(root, m)
		if err != nil {
			log.Debug("skipping extension manifest", "path", m, "error", err)
			continue
		}
		ids = append(ids, id)
	}

	plugins, err := doublestar.Glob(root, jetbrainsManifest)
	if err != nil {
		return nil, err
	}
	for _, m := range plugins {
		data, err := fs.ReadFile(root, m)
		if err != nil {
			log.Debug("skipping plugin manifest", "path", m, "error", err)
			continue
		}
		id, err := parsePluginXML(data)
		if err != nil {
			log.Debug("skipping plugin manifest", "path", m, "error", err)
			continue
		}
		ids = append(ids, id)
	}

	jars, err := doublestar.Glob(root, jetbrainsJars)
	if err != nil {
		return nil, err
	}
	found := map[string]bool{}
	for _, jar := range jars {
		plugin := path.Dir(path.Dir(jar))
		if found[plugin] {
			continue
		}
		id, err := readJar(root, jar)
		if errors.Is(err, errNoPluginXML) {
			continue
		}
		if err != nil {
			log.Debug("skipping plugin jar", "path", jar, "error", err)
			continue
		}
		found[plugin] = true
		ids = append(ids, id)
	}
	return ids, nil
}

func readPackageJSON(root fs.FS, name string) (string, error) {
	data, err := fs.ReadFile(root, name)
	if err != nil {
		return "", err
	}
	var pkg struct {
		Publisher string `json:"publisher"`
		Name      string `json:"name"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return "", fmt.Errorf("parsing: %w", err)
	}
	if pkg.Publisher == "" || pkg.Name == "" {
		return "", fmt.Errorf("missing publisher or name")
	}
	return pkg.Publisher + "." + pkg.Name, nil
}

// readJar returns the plugin ID from the descriptor packed in a jar.
func readJar(root fs.FS, name string) (string, error) {
	f, err := root.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	ra, ok := f.(io.ReaderAt)
	if !ok {
		data, err := io.ReadAll(f)
		if err != nil {
			return "", err
		}
		ra = bytes.NewReader(data)
	}

	zr, err := zip.NewReader(ra, info.Size())
	if err != nil {
		return "", fmt.Errorf("opening jar: %w", err)
	}
	entry, err := zr.Open(pluginXML)
	if errors.Is(err, fs.ErrNotExist) {
		return "", errNoPluginXML
	}
	if err != nil {
		return "", err
	}
	defer entry.Close()

	data, err := io.ReadAll(entry)
	if err != nil {
		return "", err
	}
	return parsePluginXML(data)
}

func parsePluginXML(data []byte) (string, error) {
	var plugin struct {
		ID   string `xml:"id"`
		Name string `xml:"name"`
	}
	if err := xml.Unmarshal(data, &plugin); err != nil {
		return "", fmt.Errorf("parsing: %w", err)
	}
	// Plugins without an <id> are identified by their name.
	id := strings.TrimSpace(plugin.ID)
	if id == "" {
		id = strings.TrimSpace(plugin.Name)
	}
	if id == "" {
		return "", fmt.Errorf("missing id")
	}
	return id, nil
}
