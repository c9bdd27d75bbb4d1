package project

// Project is a deployment target as reported by the deploy server's project listing.
type Project struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ListResponse is the body of GET /deploy.
type ListResponse struct {
	Projects []Project `json:"projects"`
}

// NameSeparator joins a configured prefix and an archive stem.
const NameSeparator = "_"

// Name derives the project name for an archive stem.
// With a prefix the result is "<prefix>_<stem>"; uniqueness is left to the server.
func Name(stem, prefix string) string {
	if prefix == "" {
		return stem
	}
	return prefix + NameSeparator + stem
}
