package core

import "pkt.systems/codesync/schema"

// file tracks the state of a single open file.
type file struct {
	ID       schema.FileID
	Name     string
	Language schema.Language
	Content  string
}

func newFile(id schema.FileID, stem string, lang schema.Language, content string) *file {
	return &file{
		ID:       id,
		Name:     schema.FileName(stem, lang),
		Language: lang,
		Content:  content,
	}
}

// Snapshot returns a transport-friendly view of the file.
func (f *file) Snapshot(active bool) schema.FileSnapshot {
	return schema.FileSnapshot{
		ID:       f.ID,
		Name:     f.Name,
		Language: f.Language,
		Content:  f.Content,
		Active:   active,
	}
}

func removeFileID(order []schema.FileID, id schema.FileID) []schema.FileID {
	for i, current := range order {
		if current == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
