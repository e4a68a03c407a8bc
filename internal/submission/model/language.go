package model

import "sort"

// UnknownLanguage is the display name for ids missing from the table.
const UnknownLanguage = "Unknown"

// Language is a remote execution language id with its display name.
type Language struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

var languages = map[int]string{
	71: "Python 3",
	54: "C++",
	62: "Java",
}

// LanguageName returns the display name for id, or "Unknown".
func LanguageName(id int) string {
	if name, ok := languages[id]; ok {
		return name
	}
	return UnknownLanguage
}

// IsSupportedLanguage reports whether id is in the table.
func IsSupportedLanguage(id int) bool {
	_, ok := languages[id]
	return ok
}

// Languages returns the table ordered by id.
func Languages() []Language {
	out := make([]Language, 0, len(languages))
	for id, name := range languages {
		out = append(out, Language{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
