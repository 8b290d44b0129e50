package badger

import (
	"context"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// variableEntry is one [key] section in a variables.toml file:
//
//	[gemini-api-key]
//	value = "..."
//	description = "Gemini key for embeddings and generation"
type variableEntry struct {
	Value       string `toml:"value"`
	Description string `toml:"description"`
}

// LoadVariablesFile loads key/value pairs from a variables.toml file into the
// KV store. A missing file is not an error; entries are upserted so operator
// edits win over stale stored values.
func (m *Manager) LoadVariablesFile(ctx context.Context, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		m.logger.Debug().Str("file", filePath).Msg("variables file does not exist, skipping")
		return nil
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		m.logger.Warn().Err(err).Str("file", filePath).Msg("Failed to read variables file")
		return nil // Non-fatal
	}

	var entries map[string]variableEntry
	if err := toml.Unmarshal(content, &entries); err != nil {
		m.logger.Warn().Err(err).Str("file", filePath).Msg("Failed to parse variables file")
		return nil
	}

	loadedCount := 0
	skippedCount := 0

	for key, entry := range entries {
		if entry.Value == "" {
			m.logger.Warn().Str("file", filePath).Str("key", key).Msg("Skipping variable with empty value")
			skippedCount++
			continue
		}

		description := entry.Description
		if description == "" {
			description = "Loaded from variables file"
		}

		isNew, err := m.kv.Upsert(ctx, key, entry.Value, description)
		if err != nil {
			m.logger.Error().Err(err).Str("key", key).Msg("Failed to store variable")
			continue
		}

		if isNew {
			m.logger.Debug().Str("key", key).Msg("Loaded new variable")
		} else {
			m.logger.Debug().Str("key", key).Msg("Updated existing variable")
		}
		loadedCount++
	}

	m.logger.Debug().
		Str("file", filePath).
		Int("loaded", loadedCount).
		Int("skipped", skippedCount).
		Msg("Finished loading variables file")

	return nil
}
