package pdfdoc

import (
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"

	"github.com/OGKevin/plato/document"
)

// readOutline loads the bookmark tree. Outlines are optional, so any
// failure yields a document without one.
func readOutline(path string, pageCount int) []document.TocEntry {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	marks, err := api.Bookmarks(f, nil)
	if err != nil {
		return nil
	}
	return convertBookmarks(marks, pageCount)
}

func convertBookmarks(marks []pdfcpu.Bookmark, pageCount int) []document.TocEntry {
	if len(marks) == 0 {
		return nil
	}
	entries := make([]document.TocEntry, 0, len(marks))
	for _, m := range marks {
		// PageFrom is 1-based; clamp odd values instead of dropping
		// the entry.
		page := m.PageFrom - 1
		if page < 0 {
			page = 0
		}
		if page >= pageCount {
			page = pageCount - 1
		}
		entries = append(entries, document.TocEntry{
			Title:    m.Title,
			Target:   document.PageIndex(page),
			Children: convertBookmarks(m.Kids, pageCount),
		})
	}
	return entries
}
