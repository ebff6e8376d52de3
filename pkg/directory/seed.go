package directory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML shape for bootstrapping a single-process deployment:
// family scopes with their members, plus the posts the engines may target.
type SeedFile struct {
	Scopes []struct {
		ID         string   `yaml:"id"`
		Owner      string   `yaml:"owner"`
		Moderators []string `yaml:"moderators"`
		Members    []struct {
			ID          string `yaml:"id"`
			DisplayName string `yaml:"display_name"`
			AvatarURL   string `yaml:"avatar_url"`
		} `yaml:"members"`
	} `yaml:"scopes"`
	Posts []struct {
		ID        string `yaml:"id"`
		Scope     string `yaml:"scope"`
		Author    string `yaml:"author"`
		Milestone bool   `yaml:"milestone"`
	} `yaml:"posts"`
}

// LoadSeed reads a seed file and returns a populated in-memory directory.
func LoadSeed(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sf SeedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse directory seed %s: %w", path, err)
	}

	m := NewMemory()
	for _, sc := range sf.Scopes {
		if sc.ID == "" {
			return nil, fmt.Errorf("directory seed %s: scope with empty id", path)
		}
		for _, u := range sc.Members {
			m.AddUser(UserRef{ID: u.ID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}, sc.ID)
		}
		if sc.Owner != "" {
			m.SetOwner(sc.Owner, sc.ID)
		}
		for _, mod := range sc.Moderators {
			m.SetModerator(mod, sc.ID)
		}
	}
	for _, p := range sf.Posts {
		if p.ID == "" || p.Scope == "" {
			return nil, fmt.Errorf("directory seed %s: post needs id and scope", path)
		}
		m.AddPost(PostRef{ID: p.ID, ScopeID: p.Scope, AuthorID: p.Author, Milestone: p.Milestone})
	}
	return m, nil
}
