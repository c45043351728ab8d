package models

// Category groups transactions. Transactions reference a category by Name, so
// names are unique within a category set.
type Category struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Icon         string `json:"icon" yaml:"icon"`
	Color        string `json:"color" yaml:"color"`
	IsPredefined bool   `json:"isPredefined" yaml:"predefined"`
}

// CategoriesConfig is the YAML layout of a predefined-category seed file.
type CategoriesConfig struct {
	Categories []Category `yaml:"categories"`
}

// DefaultCategories returns the built-in predefined categories.
func DefaultCategories() []Category {
	return []Category{
		{ID: "predefined-food", Name: "Food", Icon: "fast-food", Color: "#FF6B6B", IsPredefined: true},
		{ID: "predefined-transport", Name: "Transport", Icon: "car", Color: "#4ECDC4", IsPredefined: true},
		{ID: "predefined-shopping", Name: "Shopping", Icon: "cart", Color: "#FFD93D", IsPredefined: true},
		{ID: "predefined-bills", Name: "Bills", Icon: "receipt", Color: "#6C5CE7", IsPredefined: true},
		{ID: "predefined-entertainment", Name: "Entertainment", Icon: "film", Color: "#FD79A8", IsPredefined: true},
		{ID: "predefined-health", Name: "Health", Icon: "medkit", Color: "#00B894", IsPredefined: true},
		{ID: "predefined-salary", Name: "Salary", Icon: "cash", Color: "#0984E3", IsPredefined: true},
		{ID: "predefined-other", Name: "Other", Icon: "ellipsis-horizontal", Color: "#B2BEC3", IsPredefined: true},
	}
}

// FindCategoryByName returns the index of the category with the given name, or -1.
func FindCategoryByName(categories []Category, name string) int {
	for i := range categories {
		if categories[i].Name == name {
			return i
		}
	}
	return -1
}

// CloneCategories copies a category slice.
func CloneCategories(in []Category) []Category {
	if in == nil {
		return nil
	}
	out := make([]Category, len(in))
	copy(out, in)
	return out
}
