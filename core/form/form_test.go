package form

import (
	"io/fs"
	"testing"

	appfs "github.com/trezcool/forma/fs"
)

// loadSeed returns the embedded sample template with the given slug.
func loadSeed(t *testing.T, slug string) Template {
	t.Helper()
	seeds, err := LoadSeeds(appfs.FS, "seeds")
	if err != nil {
		t.Fatalf("LoadSeeds(): %v", err)
	}
	for _, s := range seeds {
		if s.Slug == slug {
			return Template{
				ID:          s.Slug,
				Slug:        s.Slug,
				Title:       s.Title,
				Description: s.Description,
				Sections:    s.Sections,
				Settings:    s.Settings,
				Permissions: s.Permissions,
				IsPublic:    s.IsPublic,
				Tags:        s.Tags,
			}
		}
	}
	t.Fatalf("seed %q not found", slug)
	return Template{}
}

func sectionIDs(sections []Section) []string {
	ids := make([]string, 0, len(sections))
	for _, sec := range sections {
		ids = append(ids, sec.ID)
	}
	return ids
}

func fieldIDs(fields []Field) []string {
	ids := make([]string, 0, len(fields))
	for _, fld := range fields {
		ids = append(ids, fld.ID)
	}
	return ids
}

func appfsFS() fs.FS { return appfs.FS }

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }
