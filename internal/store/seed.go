package store

import (
	"fmt"
	"os"
	"path/filepath"

	"edwinliby/xpense-sync/internal/models"

	"gopkg.in/yaml.v3"
)

// FindSeedFile looks for a category seed file in the standard locations:
// the path itself, ./config/, and ~/.config/xpense/.
func FindSeedFile(filename string) (string, error) {
	if filepath.IsAbs(filename) {
		if _, err := os.Stat(filename); err == nil {
			return filename, nil
		}
		return "", os.ErrNotExist
	}

	locations := []string{
		filename,
		filepath.Join("config", filename),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(homeDir, ".config", "xpense", filename))
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location, nil
		}
	}
	return "", os.ErrNotExist
}

// LoadPredefinedCategories reads predefined categories from a YAML seed file.
// An empty filename or a missing file yields the built-in defaults. Every
// loaded category is marked predefined.
func LoadPredefinedCategories(filename string) ([]models.Category, error) {
	if filename == "" {
		return models.DefaultCategories(), nil
	}

	path, err := FindSeedFile(filename)
	if err != nil {
		return models.DefaultCategories(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading categories file: %w", err)
	}

	// Accept both "categories: [...]" and a bare list.
	var cfg models.CategoriesConfig
	var categories []models.Category
	if err := yaml.Unmarshal(data, &cfg); err == nil && len(cfg.Categories) > 0 {
		categories = cfg.Categories
	} else if err := yaml.Unmarshal(data, &categories); err != nil {
		return nil, fmt.Errorf("error parsing categories file: %w", err)
	}

	seen := make(map[string]bool, len(categories))
	out := make([]models.Category, 0, len(categories))
	for _, c := range categories {
		if c.Name == "" || seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		if c.ID == "" {
			c.ID = "predefined-" + c.Name
		}
		c.IsPredefined = true
		out = append(out, c)
	}
	if len(out) == 0 {
		return models.DefaultCategories(), nil
	}
	return out, nil
}
