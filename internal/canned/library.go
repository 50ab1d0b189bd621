// Package canned serves the direct-path reply texts (greeting, help,
// sources...) from YAML files, so wording can be changed without a rebuild.
package canned

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"finbot/internal/domain"
)

// replyFile is the schema of one YAML file. Keys of Replies are intent
// names (GREETING, HELP...).
type replyFile struct {
	Replies map[string]string `yaml:"replies"`
}

// Library holds the loaded reply texts.
type Library struct {
	replies map[domain.Intent]string
	logger  *slog.Logger
}

// NewLibrary creates an empty library; Reply then falls back to the
// compiled-in texts of whoever asks.
func NewLibrary(logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{
		replies: make(map[domain.Intent]string),
		logger:  logger,
	}
}

// LoadFromDirectory loads reply overrides from YAML files in a directory.
// Files must have .yaml or .yml extension; later files win on key clashes.
func LoadFromDirectory(dir string, logger *slog.Logger) (*Library, error) {
	lib := NewLibrary(logger)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		lib.logger.Debug("replies directory does not exist, skipping", "dir", dir)
		return lib, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read replies dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			lib.logger.Warn("cannot read replies file", "path", path, "err", err)
			continue
		}

		var file replyFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			lib.logger.Warn("cannot parse replies file", "path", path, "err", err)
			continue
		}

		for key, text := range file.Replies {
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			lib.replies[domain.Intent(strings.ToUpper(key))] = text
		}
		lib.logger.Info("loaded reply overrides", "path", path, "count", len(file.Replies))
	}

	return lib, nil
}

// Reply returns the configured text for an intent, if any.
func (l *Library) Reply(it domain.Intent) (string, bool) {
	text, ok := l.replies[it]
	return text, ok
}

// Set overrides one reply programmatically. Used by tests and the init
// command's sample file generation.
func (l *Library) Set(it domain.Intent, text string) {
	l.replies[it] = text
}
